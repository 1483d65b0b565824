package field

import (
	"fmt"
	"time"

	"pinfield/internal/digits"
)

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// Snapshot is the restorable subset of field state, used to survive a
// suspend/resume of the hosting context. Verification state is deliberately
// absent: a restored field always starts Idle.
type Snapshot struct {
	Version   int       `json:"version"`
	Length    int       `json:"length"`
	Secure    bool      `json:"secure"`
	Cells     string    `json:"cells"`
	Focus     int       `json:"focus"`
	Enabled   bool      `json:"enabled"`
	Remaining int       `json:"remaining_seconds"`
	SavedAt   time.Time `json:"saved_at"`
}

// Validate checks structural consistency of a snapshot.
func (s Snapshot) Validate() error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("field: unsupported snapshot version %d", s.Version)
	}
	if s.Length < 1 {
		return fmt.Errorf("field: invalid snapshot length %d", s.Length)
	}
	if len(s.Cells) != s.Length {
		return fmt.Errorf("field: snapshot cells %q do not match length %d", s.Cells, s.Length)
	}
	if s.Focus < -1 || s.Focus >= s.Length {
		return fmt.Errorf("field: snapshot focus %d out of range", s.Focus)
	}
	if s.Remaining < 0 {
		return fmt.Errorf("field: negative snapshot remaining %d", s.Remaining)
	}
	return nil
}

// Snapshot captures the restorable state.
func (f *Field) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Snapshot{
		Version:   SnapshotVersion,
		Length:    f.buf.Len(),
		Secure:    f.opts.Secure,
		Cells:     f.buf.Encode(),
		Focus:     f.focus,
		Enabled:   f.enabled,
		Remaining: f.timer.Remaining(),
		SavedAt:   time.Now().UTC(),
	}
}

// Restore rebuilds buffer, focus, and countdown from a snapshot taken by a
// field with the same length and secure mode. Verification always restarts
// at Idle, and since the disabled state only ever accompanies an in-flight
// round-trip (which does not survive), the restored field is enabled. The
// countdown resumes ticking from the stored remaining value, or stays
// expired if it had already run out.
func (f *Field) Restore(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if s.Length != f.opts.Length {
		f.mu.Unlock()
		return fmt.Errorf("field: snapshot length %d does not match field length %d", s.Length, f.opts.Length)
	}
	if s.Secure != f.opts.Secure {
		f.mu.Unlock()
		return fmt.Errorf("field: snapshot secure mode does not match field")
	}

	buf, err := digits.FromString(s.Length, s.Cells)
	if err != nil {
		f.mu.Unlock()
		return err
	}

	f.verifyGen++ // discard anything in flight from the previous life
	f.buf = buf
	f.focus = s.Focus
	f.vstate = VerifyState{}
	f.enabled = true
	f.timer.Restore(s.Remaining)
	f.timer.Resume()
	focus := f.focus
	f.mu.Unlock()

	if focus >= 0 {
		f.perform([]Effect{EffectRequestFocus{Index: focus}})
	} else {
		f.perform(nil)
	}
	return nil
}
