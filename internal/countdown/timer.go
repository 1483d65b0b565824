// Package countdown implements the resend countdown behind a PIN field.
//
// A Timer counts whole seconds from a starting value down to zero. It can be
// paused while a verification round-trip is outstanding and resumed with the
// remaining value intact. At most one tick loop runs at a time: every
// start/pause/reset bumps a generation counter and signals the previous loop
// to exit, so overlapping loops can never double-decrement the remaining
// value.
package countdown

import (
	"sync"
	"time"
)

// State identifies the timer lifecycle phase.
type State int

const (
	// Stopped is the initial state; no countdown has been started.
	Stopped State = iota
	// Running means the tick loop is decrementing the remaining seconds.
	Running
	// Paused holds the remaining value while verification is outstanding.
	Paused
	// Expired means the countdown reached zero.
	Expired
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Timer is a pausable one-second countdown.
// All methods are safe for concurrent use.
type Timer struct {
	mu        sync.Mutex
	state     State
	remaining int
	interval  time.Duration

	// gen invalidates stale tick loops; stopc wakes the current loop so
	// teardown does not have to wait out a full interval.
	gen   uint64
	stopc chan struct{}

	onTick func(remaining int, expired bool)
}

// New returns a stopped timer ticking once per second.
func New() *Timer {
	return NewWithInterval(time.Second)
}

// NewWithInterval returns a stopped timer with a custom tick interval.
// Anything other than one second is only useful in tests.
func NewWithInterval(interval time.Duration) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{interval: interval}
}

// Notify registers a callback invoked after every decrement, outside the
// timer lock. Expired is true on the tick that reached zero. Only one
// callback is supported; registering replaces the previous one.
func (t *Timer) Notify(fn func(remaining int, expired bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = fn
}

// Start begins a fresh countdown from totalSeconds. A non-positive total
// expires immediately. Any previous tick loop is cancelled first.
func (t *Timer) Start(totalSeconds int) {
	t.mu.Lock()
	t.invalidateLocked()

	if totalSeconds <= 0 {
		t.state = Expired
		t.remaining = 0
		t.mu.Unlock()
		return
	}

	t.state = Running
	t.remaining = totalSeconds
	gen, stopc := t.armLocked()
	t.mu.Unlock()

	go t.run(gen, stopc)
}

// Reset cancels any in-flight countdown and restarts from totalSeconds.
// It is Start under a name that matches the resend action.
func (t *Timer) Reset(totalSeconds int) {
	t.Start(totalSeconds)
}

// Pause suspends a running countdown, keeping the remaining value.
// A no-op in any other state.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return
	}
	t.invalidateLocked()
	t.state = Paused
}

// Resume continues a paused countdown from its remaining value. If the
// remaining value is already zero it expires instead. A no-op in any other
// state.
func (t *Timer) Resume() {
	t.mu.Lock()
	if t.state != Paused {
		t.mu.Unlock()
		return
	}
	if t.remaining <= 0 {
		t.state = Expired
		t.mu.Unlock()
		return
	}
	t.state = Running
	gen, stopc := t.armLocked()
	t.mu.Unlock()

	go t.run(gen, stopc)
}

// Stop cancels the countdown and returns to the stopped state.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invalidateLocked()
	t.state = Stopped
	t.remaining = 0
}

// State returns the current lifecycle phase.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the remaining whole seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Expired reports whether the countdown has reached zero.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Expired
}

// Restore loads a remaining value from a snapshot without starting a loop.
// The timer ends up Paused (or Expired when remaining is zero) so the owner
// decides when ticking resumes.
func (t *Timer) Restore(remaining int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invalidateLocked()
	if remaining <= 0 {
		t.state = Expired
		t.remaining = 0
		return
	}
	t.state = Paused
	t.remaining = remaining
}

// invalidateLocked bumps the generation and wakes the current loop.
func (t *Timer) invalidateLocked() {
	t.gen++
	if t.stopc != nil {
		close(t.stopc)
		t.stopc = nil
	}
}

// armLocked prepares a stop channel for a new loop generation.
func (t *Timer) armLocked() (uint64, chan struct{}) {
	t.gen++
	t.stopc = make(chan struct{})
	return t.gen, t.stopc
}

// run is the tick loop. It exits when its generation is invalidated or the
// countdown expires.
func (t *Timer) run(gen uint64, stopc chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopc:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		if t.gen != gen || t.state != Running {
			t.mu.Unlock()
			return
		}
		t.remaining--
		expired := t.remaining <= 0
		if expired {
			t.remaining = 0
			t.state = Expired
			t.stopc = nil
		}
		remaining := t.remaining
		fn := t.onTick
		t.mu.Unlock()

		if fn != nil {
			fn(remaining, expired)
		}
		if expired {
			return
		}
	}
}
