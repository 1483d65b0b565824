package field

import "pinfield/internal/digits"

// Action is one input event for the field. The set of actions is closed:
// front-ends translate raw platform input into exactly these shapes and
// dispatch them through Field.Dispatch, the single mutation entry point.
type Action interface {
	isAction()
}

// EnterDigit places a digit, or clears a cell in place.
//
// With a valid Digit: if the cell at Index is already filled the digit
// overwrites it there (explicit tap-to-overwrite); otherwise Index is
// ignored and the digit lands on the first empty cell, enforcing strict
// left-to-right fill even when input delivery lags behind focus changes.
//
// With digits.None: the cell at Index is cleared and focus stays there.
// This is the platform-backspace-on-a-filled-cell half of the backspace
// contract; see Backspace for the other half.
type EnterDigit struct {
	Digit digits.Digit
	Index int
}

// Backspace clears the cell immediately before the focused one (clamped to
// index 0) and moves focus onto it. Front-ends dispatch it when a platform
// backspace fires on an already-empty cell, so that repeated backspacing
// walks a filled sequence right to left.
type Backspace struct{}

// Paste replaces the whole buffer with the digits found in Text, starting
// from index 0. Non-digit characters are stripped and the rest truncated to
// the field length; if nothing survives the filter the event is ignored.
// Clipboard paste and platform code autofill both arrive this way.
type Paste struct {
	Text string
}

// TapCell reports a tap on a cell. A tap on a filled cell focuses it for
// overwrite; a tap on an empty cell is redirected to the first empty cell.
// The redirect must resolve in the same input-handling turn as the tap.
type TapCell struct {
	Index int
}

// FocusChanged records where platform focus settled. Pure bookkeeping; it
// performs no redirection of its own. Index -1 means no cell is focused.
type FocusChanged struct {
	Index int
}

// ResendTapped requests a fresh code. It only has an effect once the
// countdown has expired; before that it is a silent no-op.
type ResendTapped struct{}

// TimerTick is dispatched by the countdown after each decrement so
// observers re-render. It carries no mutation of its own.
type TimerTick struct {
	Remaining int
	Expired   bool
}

func (EnterDigit) isAction()   {}
func (Backspace) isAction()    {}
func (Paste) isAction()        {}
func (TapCell) isAction()      {}
func (FocusChanged) isAction() {}
func (ResendTapped) isAction() {}
func (TimerTick) isAction()    {}
