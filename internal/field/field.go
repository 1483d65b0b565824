// Package field implements the input state machine for a fixed-length
// one-time-passcode / PIN entry widget.
//
// A Field owns the authoritative digit buffer, the focus cursor, the
// verification lifecycle, and the resend countdown. Front-ends translate
// raw platform input into Actions and hand them to Dispatch; every
// transition is computed as (state, action) -> (state, effects), with
// effects (focus requests, notifier calls, the verifier round-trip)
// executed after the new state commits. Dispatch serializes actions with a
// mutex so observers never see a partial update.
//
// Rendering, theming, and platform focus/keyboard plumbing live in the
// front-ends under cmd/; the Field only exposes a View snapshot for them
// to draw from.
package field

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pinfield/internal/countdown"
	"pinfield/internal/digits"
	"pinfield/internal/verify"
)

var (
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("field: closed")

	// ErrDisabled is returned when an edit arrives while verification is in
	// flight or after it succeeded. Front-ends normally stop dispatching
	// edits while the field is disabled; hitting this means they did not.
	ErrDisabled = errors.New("field: input disabled")
)

// VerifyStatus identifies the verification lifecycle phase.
type VerifyStatus int

const (
	// VerifyIdle means no round-trip is outstanding.
	VerifyIdle VerifyStatus = iota
	// VerifyLoading means a round-trip is in flight; input is disabled.
	VerifyLoading
	// VerifySuccess is terminal for the widget; input stays disabled and
	// the countdown never resumes.
	VerifySuccess
	// VerifyError holds a user-visible message until the next edit.
	VerifyError
)

// VerifyState is the verification phase plus its user-visible message.
type VerifyState struct {
	Status  VerifyStatus
	Message string
}

// Options configures a Field.
type Options struct {
	// Length is the number of digit cells. Required, at least 1.
	Length int

	// Secure marks the field for masked rendering. It does not affect the
	// data model, only what View reports to renderers.
	Secure bool

	// ResendSeconds is the full countdown duration started by Start and by
	// a successful resend. Required, at least 1.
	ResendSeconds int

	// Verifier checks the complete code. Required.
	Verifier verify.Verifier

	// TickInterval overrides the one-second countdown tick. Tests only.
	TickInterval time.Duration
}

// Hooks are the collaborator callbacks a front-end can register. All are
// optional and are invoked outside the field lock, after the state
// transition that produced them has committed. A hook must not assume it
// runs on any particular goroutine.
type Hooks struct {
	// RequestFocus asks the platform to focus the cell at the given index.
	RequestFocus func(index int)

	// HideKeyboard dismisses the soft keyboard when the buffer completes.
	HideKeyboard func()

	// Shake plays the error feedback animation.
	Shake func()

	// Success fires exactly once when verification succeeds.
	Success func()

	// Resend fires exactly once per accepted resend tap.
	Resend func()

	// Changed signals that observable state changed and renderers should
	// re-read View.
	Changed func()
}

// Field is the serialized state holder for one PIN entry widget.
type Field struct {
	mu    sync.Mutex
	opts  Options
	hooks Hooks

	buf     digits.Buffer
	focus   int // -1 when no cell holds focus
	vstate  VerifyState
	enabled bool

	timer    *countdown.Timer
	verifier verify.Verifier

	attempts int
	resends  int

	// verifyGen invalidates in-flight round-trips on resend and teardown.
	verifyGen uint64

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// New creates a Field. The countdown does not run until Start.
func New(opts Options) (*Field, error) {
	if opts.Verifier == nil {
		return nil, errors.New("field: verifier is required")
	}
	if opts.ResendSeconds < 1 {
		return nil, fmt.Errorf("field: invalid resend duration %d", opts.ResendSeconds)
	}
	buf, err := digits.New(opts.Length)
	if err != nil {
		return nil, err
	}

	interval := opts.TickInterval
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Field{
		opts:     opts,
		buf:      buf,
		focus:    0,
		enabled:  true,
		timer:    countdown.NewWithInterval(interval),
		verifier: opts.Verifier,
		ctx:      ctx,
		cancel:   cancel,
	}
	f.timer.Notify(func(remaining int, expired bool) {
		// Route ticks through Dispatch so observers see them in the same
		// serialized stream as every other action.
		_ = f.Dispatch(TimerTick{Remaining: remaining, Expired: expired})
	})
	return f, nil
}

// SetHooks registers the collaborator callbacks. Call before Start.
func (f *Field) SetHooks(h Hooks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = h
}

// Start begins the resend countdown and requests focus on the first cell.
func (f *Field) Start() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.timer.Start(f.opts.ResendSeconds)
	f.focus = 0
	f.mu.Unlock()

	f.perform([]Effect{EffectRequestFocus{Index: 0}})
	return nil
}

// SetResendSeconds changes the duration used by subsequent resend cycles.
// A countdown that is already running keeps its current deadline.
func (f *Field) SetResendSeconds(seconds int) error {
	if seconds < 1 {
		return fmt.Errorf("field: invalid resend duration %d", seconds)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.opts.ResendSeconds = seconds
	return nil
}

// Close tears the widget down. The tick loop stops, any in-flight
// verification result is discarded, and no hook fires afterward.
// Dispatch returns ErrClosed from here on.
func (f *Field) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.verifyGen++
	f.timer.Stop()
	f.mu.Unlock()

	f.cancel()
}

// Dispatch applies one action. It is the only way to mutate the field.
// Actions are applied one at a time; the resulting state is fully committed
// before the effects run and before the next action is accepted.
func (f *Field) Dispatch(a Action) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	effects, err := f.apply(a)
	f.mu.Unlock()

	if err != nil {
		return err
	}
	f.perform(effects)
	return nil
}

// apply computes one transition. Called with the lock held.
func (f *Field) apply(a Action) ([]Effect, error) {
	switch a := a.(type) {
	case EnterDigit:
		return f.enterDigit(a.Digit, a.Index)
	case Backspace:
		return f.backspace()
	case Paste:
		return f.paste(a.Text)
	case TapCell:
		return f.tapCell(a.Index)
	case FocusChanged:
		return f.focusChanged(a.Index)
	case ResendTapped:
		return f.resendTapped()
	case TimerTick:
		// The countdown already holds the new remaining value; the tick
		// only exists so observers re-render in dispatch order.
		return nil, nil
	default:
		return nil, fmt.Errorf("field: unknown action %T", a)
	}
}

func (f *Field) enterDigit(d digits.Digit, index int) ([]Effect, error) {
	if !f.enabled {
		return nil, ErrDisabled
	}

	if d == digits.None {
		// Same-cell clear: platform backspace on a filled cell.
		buf, err := f.buf.Set(index, digits.None)
		if err != nil {
			return nil, err
		}
		f.clearErrorState()
		f.buf = buf
		f.focus = index
		return []Effect{EffectRequestFocus{Index: index}}, nil
	}

	target := index
	if !f.buf.Filled(index) {
		// Left-to-right fill: the physical cell that produced the event is
		// irrelevant unless it is an explicit overwrite of a filled cell.
		first, ok := f.buf.FirstEmpty()
		if !ok {
			return nil, nil
		}
		target = first
	}

	buf, err := f.buf.Set(target, d)
	if err != nil {
		return nil, err
	}
	f.clearErrorState()
	f.buf = buf

	if f.buf.Complete() {
		f.focus = target
		return f.beginVerification(), nil
	}
	first, _ := f.buf.FirstEmpty()
	f.focus = first
	return []Effect{EffectRequestFocus{Index: first}}, nil
}

func (f *Field) backspace() ([]Effect, error) {
	if !f.enabled {
		return nil, ErrDisabled
	}

	i := f.focus - 1
	if i < 0 {
		i = 0
	}
	buf, err := f.buf.Set(i, digits.None)
	if err != nil {
		return nil, err
	}
	f.buf = buf
	f.focus = i
	return []Effect{EffectRequestFocus{Index: i}}, nil
}

func (f *Field) paste(text string) ([]Effect, error) {
	if !f.enabled {
		return nil, ErrDisabled
	}

	filtered := make([]digits.Digit, 0, f.buf.Len())
	for _, r := range text {
		if d := digits.FromRune(r); d != digits.None {
			filtered = append(filtered, d)
			if len(filtered) == f.buf.Len() {
				break
			}
		}
	}
	if len(filtered) == 0 {
		// Input noise, not an error.
		return nil, nil
	}

	buf := f.buf.Cleared()
	for i, d := range filtered {
		buf, _ = buf.Set(i, d)
	}
	f.clearErrorState()
	f.buf = buf
	f.focus = len(filtered) - 1

	if f.buf.Complete() {
		return f.beginVerification(), nil
	}
	return []Effect{EffectRequestFocus{Index: f.focus}}, nil
}

func (f *Field) tapCell(index int) ([]Effect, error) {
	if index < 0 || index >= f.buf.Len() {
		return nil, fmt.Errorf("%w: %d", digits.ErrIndexOutOfRange, index)
	}
	if !f.enabled {
		return nil, ErrDisabled
	}

	target := index
	if !f.buf.Filled(index) {
		// A tap on any empty cell lands on the frontier. Filled cells keep
		// the tap so the next digit overwrites in place.
		if first, ok := f.buf.FirstEmpty(); ok {
			target = first
		}
	}
	f.focus = target
	return []Effect{EffectRequestFocus{Index: target}}, nil
}

func (f *Field) focusChanged(index int) ([]Effect, error) {
	if index < -1 || index >= f.buf.Len() {
		return nil, fmt.Errorf("%w: %d", digits.ErrIndexOutOfRange, index)
	}
	f.focus = index
	return nil, nil
}

func (f *Field) resendTapped() ([]Effect, error) {
	if !f.timer.Expired() {
		// Only actionable once the countdown ran out.
		return nil, nil
	}

	f.verifyGen++ // orphan any outstanding round-trip
	f.buf = f.buf.Cleared()
	f.focus = 0
	f.vstate = VerifyState{}
	f.enabled = true
	f.resends++
	f.timer.Reset(f.opts.ResendSeconds)

	return []Effect{EffectNotifyResend{}, EffectRequestFocus{Index: 0}}, nil
}

// clearErrorState drops a lingering error back to idle. The next digit edit
// or paste does this implicitly; there is no timeout.
func (f *Field) clearErrorState() {
	if f.vstate.Status == VerifyError {
		f.vstate = VerifyState{}
	}
}

// beginVerification transitions to loading. Called with the lock held, with
// a complete buffer.
func (f *Field) beginVerification() []Effect {
	f.verifyGen++
	f.vstate = VerifyState{Status: VerifyLoading}
	f.enabled = false
	f.timer.Pause()

	return []Effect{
		EffectHideKeyboard{},
		EffectVerify{Code: f.buf.String(), gen: f.verifyGen},
	}
}

// perform executes effects after a transition committed, then signals
// Changed. Runs without the lock so hooks may dispatch follow-up actions.
func (f *Field) perform(effects []Effect) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	hooks := f.hooks
	f.mu.Unlock()

	for _, e := range effects {
		switch e := e.(type) {
		case EffectRequestFocus:
			if hooks.RequestFocus != nil {
				hooks.RequestFocus(e.Index)
			}
		case EffectHideKeyboard:
			if hooks.HideKeyboard != nil {
				hooks.HideKeyboard()
			}
		case EffectVerify:
			go f.runVerification(e.gen, e.Code)
		case EffectNotifySuccess:
			if hooks.Success != nil {
				hooks.Success()
			}
		case EffectNotifyResend:
			if hooks.Resend != nil {
				hooks.Resend()
			}
		case EffectShake:
			if hooks.Shake != nil {
				hooks.Shake()
			}
		}
	}

	if hooks.Changed != nil {
		hooks.Changed()
	}
}

// runVerification is the only suspending operation in the system. At most
// one round-trip is logically in flight: completion with a stale generation
// is discarded.
func (f *Field) runVerification(gen uint64, code string) {
	err := f.invokeVerifier(code)
	f.completeVerification(gen, err)
}

// invokeVerifier shields the field from verifier faults: a panic is
// converted into an ordinary error and surfaced as a generic failure.
func (f *Field) invokeVerifier(code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("field: verifier panic: %v", r)
		}
	}()
	return f.verifier.Verify(f.ctx, code)
}

func (f *Field) completeVerification(gen uint64, err error) {
	f.mu.Lock()
	if f.closed || gen != f.verifyGen || f.vstate.Status != VerifyLoading {
		f.mu.Unlock()
		return
	}

	var effects []Effect
	if err == nil {
		// Terminal: input stays disabled, countdown stays paused, buffer
		// stays displayed as entered.
		f.vstate = VerifyState{Status: VerifySuccess}
		effects = []Effect{EffectNotifySuccess{}}
	} else {
		f.attempts++
		f.vstate = VerifyState{Status: VerifyError, Message: verify.UserMessage(err)}
		f.buf = f.buf.Cleared()
		f.focus = 0
		f.enabled = true
		f.timer.Resume()
		effects = []Effect{EffectShake{}, EffectRequestFocus{Index: 0}}
	}
	f.mu.Unlock()

	f.perform(effects)
}

// Cell is one rendered slot.
type Cell struct {
	Digit  digits.Digit
	Filled bool
}

// View is an immutable snapshot of everything a renderer needs. It is a
// pure function of field state; renderers feed nothing back except actions.
type View struct {
	Cells     []Cell
	Focus     int
	Enabled   bool
	Secure    bool
	Verify    VerifyState
	Remaining int
	Expired   bool
	Attempts  int
	Resends   int
}

// View returns the current render snapshot.
func (f *Field) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	cells := make([]Cell, f.buf.Len())
	for i := range cells {
		d := f.buf.At(i)
		cells[i] = Cell{Digit: d, Filled: d.Valid()}
	}
	return View{
		Cells:     cells,
		Focus:     f.focus,
		Enabled:   f.enabled,
		Secure:    f.opts.Secure,
		Verify:    f.vstate,
		Remaining: f.timer.Remaining(),
		Expired:   f.timer.State() == countdown.Expired,
		Attempts:  f.attempts,
		Resends:   f.resends,
	}
}

// Len returns the number of cells.
func (f *Field) Len() int {
	return f.opts.Length
}

// Attempts returns the number of failed verification round-trips.
func (f *Field) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Resends returns the number of accepted resend taps.
func (f *Field) Resends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resends
}
