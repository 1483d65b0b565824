package field

// Effect is a side effect computed by an action transition. Effects are
// executed after the new state has been committed, in order, so transitions
// stay testable independently of their side effects.
type Effect interface {
	isEffect()
}

// EffectRequestFocus asks the platform to move input focus to a cell.
type EffectRequestFocus struct {
	Index int
}

// EffectHideKeyboard asks the platform to dismiss the soft keyboard.
// Emitted when the buffer becomes complete.
type EffectHideKeyboard struct{}

// EffectVerify starts the asynchronous verification round-trip for a
// complete code.
type EffectVerify struct {
	Code string

	// gen ties the round-trip to the verification generation that launched
	// it, so stale results are ignored.
	gen uint64
}

// EffectNotifySuccess fires the success notifier exactly once.
type EffectNotifySuccess struct{}

// EffectNotifyResend fires the resend notifier exactly once.
type EffectNotifyResend struct{}

// EffectShake asks the front-end to play its error feedback animation.
type EffectShake struct{}

func (EffectRequestFocus) isEffect()  {}
func (EffectHideKeyboard) isEffect()  {}
func (EffectVerify) isEffect()        {}
func (EffectNotifySuccess) isEffect() {}
func (EffectNotifyResend) isEffect()  {}
func (EffectShake) isEffect()         {}
