package field

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinfield/internal/digits"
	"pinfield/internal/verify"
)

// noTick keeps the countdown from ever decrementing during a test.
const noTick = time.Hour

// hookRecorder counts collaborator notifications.
type hookRecorder struct {
	mu        sync.Mutex
	focus     []int
	hidden    int
	shakes    int
	successes int
	resends   int
}

func (r *hookRecorder) hooks() Hooks {
	return Hooks{
		RequestFocus: func(i int) { r.mu.Lock(); r.focus = append(r.focus, i); r.mu.Unlock() },
		HideKeyboard: func() { r.mu.Lock(); r.hidden++; r.mu.Unlock() },
		Shake:        func() { r.mu.Lock(); r.shakes++; r.mu.Unlock() },
		Success:      func() { r.mu.Lock(); r.successes++; r.mu.Unlock() },
		Resend:       func() { r.mu.Lock(); r.resends++; r.mu.Unlock() },
	}
}

func (r *hookRecorder) counts() (hidden, shakes, successes, resends int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hidden, r.shakes, r.successes, r.resends
}

func (r *hookRecorder) lastFocus() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.focus) == 0 {
		return -1
	}
	return r.focus[len(r.focus)-1]
}

// blockingVerifier parks every call until the test releases a result.
type blockingVerifier struct {
	calls   chan string
	results chan error
}

func newBlockingVerifier() *blockingVerifier {
	return &blockingVerifier{
		calls:   make(chan string, 8),
		results: make(chan error, 8),
	}
}

func (v *blockingVerifier) Verify(ctx context.Context, code string) error {
	v.calls <- code
	select {
	case err := <-v.results:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTestField(t *testing.T, length int, v verify.Verifier) (*Field, *hookRecorder) {
	t.Helper()
	if v == nil {
		v = verify.Func(func(ctx context.Context, code string) error { return nil })
	}
	f, err := New(Options{
		Length:        length,
		ResendSeconds: 45,
		Verifier:      v,
		TickInterval:  noTick,
	})
	require.NoError(t, err)
	rec := &hookRecorder{}
	f.SetHooks(rec.hooks())
	require.NoError(t, f.Start())
	t.Cleanup(f.Close)
	return f, rec
}

func enter(t *testing.T, f *Field, d digits.Digit, index int) {
	t.Helper()
	require.NoError(t, f.Dispatch(EnterDigit{Digit: d, Index: index}))
}

func bufferString(v View) string {
	out := make([]rune, 0, len(v.Cells))
	for _, c := range v.Cells {
		if c.Filled {
			out = append(out, c.Digit.Rune())
		}
	}
	return string(out)
}

func TestNewValidatesOptions(t *testing.T) {
	ok := verify.Func(func(ctx context.Context, code string) error { return nil })

	_, err := New(Options{Length: 6, ResendSeconds: 30, Verifier: nil})
	assert.Error(t, err)

	_, err = New(Options{Length: 0, ResendSeconds: 30, Verifier: ok})
	assert.Error(t, err)

	_, err = New(Options{Length: 6, ResendSeconds: 0, Verifier: ok})
	assert.Error(t, err)
}

func TestLeftToRightFillIgnoresTargetIndex(t *testing.T) {
	f, _ := newTestField(t, 4, newBlockingVerifier())

	// Events name scattered empty cells; digits must land on the frontier
	// regardless.
	enter(t, f, 7, 3)
	enter(t, f, 1, 2)
	enter(t, f, 9, 3)

	v := f.View()
	assert.Equal(t, "719", bufferString(v))
	assert.True(t, v.Cells[0].Filled)
	assert.True(t, v.Cells[1].Filled)
	assert.True(t, v.Cells[2].Filled)
	assert.False(t, v.Cells[3].Filled)
	assert.Equal(t, 3, v.Focus)
}

func TestOverwriteFilledCellInPlace(t *testing.T) {
	f, _ := newTestField(t, 4, newBlockingVerifier())

	enter(t, f, 1, 0)
	enter(t, f, 2, 1)

	// Tap back onto cell 0 and type over it.
	require.NoError(t, f.Dispatch(TapCell{Index: 0}))
	assert.Equal(t, 0, f.View().Focus)
	enter(t, f, 5, 0)

	v := f.View()
	assert.Equal(t, "52", bufferString(v))
	// Focus moves back to the frontier after the overwrite.
	assert.Equal(t, 2, v.Focus)
}

func TestSameCellClearKeepsFocus(t *testing.T) {
	f, _ := newTestField(t, 4, newBlockingVerifier())

	enter(t, f, 1, 0)
	enter(t, f, 2, 1)

	// Platform backspace on filled cell 1.
	enter(t, f, digits.None, 1)

	v := f.View()
	assert.Equal(t, "1", bufferString(v))
	assert.Equal(t, 1, v.Focus)
	assert.False(t, v.Cells[1].Filled)
}

func TestBackspaceStepsBackAndClears(t *testing.T) {
	f, _ := newTestField(t, 6, newBlockingVerifier())

	for _, d := range []digits.Digit{1, 2, 3, 4, 5} {
		enter(t, f, d, 0)
	}
	require.Equal(t, 5, f.View().Focus)

	// Focused cell 5 is empty, so each press steps back one cell:
	// 5, 4, 3, 2, 1 disappear in that order.
	want := []string{"1234", "123", "12", "1", ""}
	for i, w := range want {
		require.NoError(t, f.Dispatch(Backspace{}))
		v := f.View()
		assert.Equal(t, w, bufferString(v), "press %d", i+1)
		assert.Equal(t, 4-i, v.Focus, "press %d", i+1)
	}

	// Clamped at the first cell.
	require.NoError(t, f.Dispatch(Backspace{}))
	assert.Equal(t, 0, f.View().Focus)
	assert.Equal(t, "", bufferString(f.View()))
}

func TestBackspaceChainEmptiesFullBuffer(t *testing.T) {
	f, _ := newTestField(t, 4, newBlockingVerifier())

	// A full buffer with idle verification is only reachable via restore.
	require.NoError(t, f.Restore(Snapshot{
		Version:   SnapshotVersion,
		Length:    4,
		Cells:     "1234",
		Focus:     3,
		Enabled:   true,
		Remaining: 30,
	}))
	require.Equal(t, "1234", bufferString(f.View()))

	// The input collaborator's two-case contract: clear in place on a
	// filled cell, step back on an empty one.
	for i := 0; i < 4; i++ {
		v := f.View()
		if v.Focus >= 0 && v.Cells[v.Focus].Filled {
			enter(t, f, digits.None, v.Focus)
		} else {
			require.NoError(t, f.Dispatch(Backspace{}))
		}
	}

	v := f.View()
	assert.Equal(t, "", bufferString(v))
	assert.Equal(t, 0, v.Focus)
}

func TestCompletionTriggersVerification(t *testing.T) {
	bv := newBlockingVerifier()
	f, rec := newTestField(t, 4, bv)

	for _, d := range []digits.Digit{4, 0, 9, 2} {
		enter(t, f, d, 0)
	}

	select {
	case code := <-bv.calls:
		assert.Equal(t, "4092", code)
	case <-time.After(time.Second):
		t.Fatal("verifier was not invoked")
	}

	v := f.View()
	assert.Equal(t, VerifyLoading, v.Verify.Status)
	assert.False(t, v.Enabled)
	assert.Equal(t, 3, v.Focus, "focus stays on the last filled cell")

	hidden, _, _, _ := rec.counts()
	assert.Equal(t, 1, hidden, "keyboard hidden once on completion")

	// Edits while loading are precondition failures, not silent no-ops.
	err := f.Dispatch(EnterDigit{Digit: 1, Index: 0})
	assert.ErrorIs(t, err, ErrDisabled)
	err = f.Dispatch(Backspace{})
	assert.ErrorIs(t, err, ErrDisabled)
	err = f.Dispatch(Paste{Text: "1234"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestPasteReplacesWholeBuffer(t *testing.T) {
	bv := newBlockingVerifier()
	f, _ := newTestField(t, 6, bv)

	// Seed some digits; paste must replace from index 0, not insert.
	enter(t, f, 9, 0)
	enter(t, f, 9, 1)

	require.NoError(t, f.Dispatch(Paste{Text: "12-34-56"}))

	select {
	case code := <-bv.calls:
		assert.Equal(t, "123456", code)
	case <-time.After(time.Second):
		t.Fatal("verifier was not invoked")
	}

	v := f.View()
	assert.Equal(t, "123456", bufferString(v))
	assert.Equal(t, 5, v.Focus)
	assert.Equal(t, VerifyLoading, v.Verify.Status)
}

func TestPastePartialDoesNotVerify(t *testing.T) {
	bv := newBlockingVerifier()
	f, _ := newTestField(t, 6, bv)

	require.NoError(t, f.Dispatch(Paste{Text: "12"}))

	v := f.View()
	assert.Equal(t, "12", bufferString(v))
	assert.False(t, v.Cells[2].Filled)
	assert.Equal(t, 1, v.Focus)
	assert.Equal(t, VerifyIdle, v.Verify.Status)

	select {
	case <-bv.calls:
		t.Fatal("verifier must not run for a partial paste")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPasteTruncatesOverflow(t *testing.T) {
	bv := newBlockingVerifier()
	f, _ := newTestField(t, 4, bv)

	require.NoError(t, f.Dispatch(Paste{Text: "123456789"}))

	v := f.View()
	assert.Equal(t, "1234", bufferString(v))
	assert.Equal(t, 3, v.Focus)
	assert.Equal(t, "1234", <-bv.calls)
}

func TestPasteWithNoDigitsIsIgnored(t *testing.T) {
	f, _ := newTestField(t, 6, newBlockingVerifier())

	enter(t, f, 7, 0)
	before := f.View()

	require.NoError(t, f.Dispatch(Paste{Text: "no digits here!"}))
	require.NoError(t, f.Dispatch(Paste{Text: ""}))

	after := f.View()
	assert.Equal(t, bufferString(before), bufferString(after))
	assert.Equal(t, before.Focus, after.Focus)
}

func TestTapOnEmptyCellRedirectsToFrontier(t *testing.T) {
	f, rec := newTestField(t, 6, newBlockingVerifier())

	enter(t, f, 1, 0)
	enter(t, f, 2, 0)

	require.NoError(t, f.Dispatch(TapCell{Index: 4}))
	assert.Equal(t, 2, f.View().Focus)
	assert.Equal(t, 2, rec.lastFocus())

	// Tapping a filled cell keeps the tap for overwrite.
	require.NoError(t, f.Dispatch(TapCell{Index: 1}))
	assert.Equal(t, 1, f.View().Focus)

	err := f.Dispatch(TapCell{Index: 6})
	assert.ErrorIs(t, err, digits.ErrIndexOutOfRange)
}

func TestFocusChangedIsBookkeepingOnly(t *testing.T) {
	f, rec := newTestField(t, 6, newBlockingVerifier())
	focusRequestsBefore := len(rec.focus)

	require.NoError(t, f.Dispatch(FocusChanged{Index: 3}))
	assert.Equal(t, 3, f.View().Focus)
	// No redirection, no focus request.
	assert.Len(t, rec.focus, focusRequestsBefore)

	require.NoError(t, f.Dispatch(FocusChanged{Index: -1}))
	assert.Equal(t, -1, f.View().Focus)

	err := f.Dispatch(FocusChanged{Index: 6})
	assert.ErrorIs(t, err, digits.ErrIndexOutOfRange)
}

func TestVerificationFailureResetsAndResumesTimer(t *testing.T) {
	bv := newBlockingVerifier()
	f, rec := newTestField(t, 4, bv)

	require.Equal(t, 45, f.View().Remaining)

	require.NoError(t, f.Dispatch(Paste{Text: "1234"}))
	<-bv.calls
	require.Equal(t, VerifyLoading, f.View().Verify.Status)

	bv.results <- verify.Reject("bad code")

	require.Eventually(t, func() bool {
		return f.View().Verify.Status == VerifyError
	}, time.Second, 5*time.Millisecond)

	v := f.View()
	assert.Equal(t, "bad code", v.Verify.Message)
	assert.Equal(t, "", bufferString(v))
	assert.Equal(t, 0, v.Focus)
	assert.True(t, v.Enabled)
	// Paused at 45, resumed at 45 rather than reset to full duration.
	assert.Equal(t, 45, v.Remaining)
	assert.Equal(t, 1, v.Attempts)

	_, shakes, _, _ := rec.counts()
	assert.Equal(t, 1, shakes)
	assert.Equal(t, 0, rec.lastFocus())
}

func TestErrorClearsOnNextEdit(t *testing.T) {
	bv := newBlockingVerifier()
	f, _ := newTestField(t, 4, bv)

	require.NoError(t, f.Dispatch(Paste{Text: "1234"}))
	<-bv.calls
	bv.results <- verify.Reject("bad code")
	require.Eventually(t, func() bool {
		return f.View().Verify.Status == VerifyError
	}, time.Second, 5*time.Millisecond)

	enter(t, f, 7, 0)
	v := f.View()
	assert.Equal(t, VerifyIdle, v.Verify.Status)
	assert.Empty(t, v.Verify.Message)
	assert.Equal(t, "7", bufferString(v))
}

func TestVerificationSuccessIsTerminal(t *testing.T) {
	bv := newBlockingVerifier()
	f, rec := newTestField(t, 4, bv)

	require.NoError(t, f.Dispatch(Paste{Text: "1234"}))
	<-bv.calls
	bv.results <- nil

	require.Eventually(t, func() bool {
		return f.View().Verify.Status == VerifySuccess
	}, time.Second, 5*time.Millisecond)

	v := f.View()
	// Buffer stays displayed, input stays disabled, countdown stays paused.
	assert.Equal(t, "1234", bufferString(v))
	assert.False(t, v.Enabled)
	assert.Equal(t, 45, v.Remaining)

	_, _, successes, _ := rec.counts()
	assert.Equal(t, 1, successes)

	err := f.Dispatch(EnterDigit{Digit: 1, Index: 0})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestVerifierFaultBecomesGenericFailure(t *testing.T) {
	panicky := verify.Func(func(ctx context.Context, code string) error {
		panic("verifier exploded")
	})
	f, _ := newTestField(t, 4, panicky)

	require.NoError(t, f.Dispatch(Paste{Text: "1234"}))

	require.Eventually(t, func() bool {
		return f.View().Verify.Status == VerifyError
	}, time.Second, 5*time.Millisecond)

	v := f.View()
	assert.Equal(t, verify.GenericFailureMessage, v.Verify.Message)
	assert.True(t, v.Enabled)
	assert.Equal(t, "", bufferString(v))
}

func TestVerifierPlainErrorBecomesGenericFailure(t *testing.T) {
	failing := verify.Func(func(ctx context.Context, code string) error {
		return errors.New("connection refused")
	})
	f, _ := newTestField(t, 4, failing)

	require.NoError(t, f.Dispatch(Paste{Text: "1234"}))

	require.Eventually(t, func() bool {
		return f.View().Verify.Status == VerifyError
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, verify.GenericFailureMessage, f.View().Verify.Message)
}

func TestResendBeforeExpiryIsNoOp(t *testing.T) {
	f, rec := newTestField(t, 4, newBlockingVerifier())

	enter(t, f, 1, 0)
	before := f.View()
	require.False(t, before.Expired)

	require.NoError(t, f.Dispatch(ResendTapped{}))

	after := f.View()
	assert.Equal(t, bufferString(before), bufferString(after))
	assert.Equal(t, before.Remaining, after.Remaining)
	_, _, _, resends := rec.counts()
	assert.Equal(t, 0, resends)
	assert.Equal(t, 0, f.Resends())
}

func TestResendAfterExpiryRestartsCycle(t *testing.T) {
	bv := newBlockingVerifier()
	f, err := New(Options{
		Length:        4,
		ResendSeconds: 2,
		Verifier:      bv,
		TickInterval:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	rec := &hookRecorder{}
	f.SetHooks(rec.hooks())
	require.NoError(t, f.Start())
	t.Cleanup(f.Close)

	require.NoError(t, f.Dispatch(EnterDigit{Digit: 3, Index: 0}))
	require.Eventually(t, func() bool { return f.View().Expired }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.Dispatch(ResendTapped{}))

	v := f.View()
	assert.Equal(t, "", bufferString(v))
	assert.Equal(t, 0, v.Focus)
	assert.Equal(t, VerifyIdle, v.Verify.Status)
	assert.True(t, v.Enabled)
	assert.False(t, v.Expired)
	// A tick may already have landed between reset and read.
	assert.GreaterOrEqual(t, v.Remaining, 1)
	assert.LessOrEqual(t, v.Remaining, 2)

	_, _, _, resends := rec.counts()
	assert.Equal(t, 1, resends)
	assert.Equal(t, 1, f.Resends())
}

func TestSetResendSecondsAppliesToNextCycle(t *testing.T) {
	f, err := New(Options{
		Length:        4,
		ResendSeconds: 1,
		Verifier:      verify.Func(func(ctx context.Context, code string) error { return nil }),
		TickInterval:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, f.Start())
	t.Cleanup(f.Close)

	assert.Error(t, f.SetResendSeconds(0))
	require.NoError(t, f.SetResendSeconds(90))

	// The running countdown keeps its original deadline.
	require.Eventually(t, func() bool { return f.View().Expired }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.Dispatch(ResendTapped{}))
	v := f.View()
	// The fast test interval may land a few ticks before the read.
	assert.GreaterOrEqual(t, v.Remaining, 85)
	assert.LessOrEqual(t, v.Remaining, 90)
}

func TestResendOrphansInFlightVerification(t *testing.T) {
	bv := newBlockingVerifier()
	f, err := New(Options{
		Length:        4,
		ResendSeconds: 1,
		Verifier:      bv,
		TickInterval:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, f.Start())
	t.Cleanup(f.Close)

	// Let the countdown expire, then complete the buffer so a round-trip
	// hangs while resend is actionable.
	require.Eventually(t, func() bool { return f.View().Expired }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.Dispatch(Paste{Text: "1234"}))
	<-bv.calls
	require.Equal(t, VerifyLoading, f.View().Verify.Status)

	require.NoError(t, f.Dispatch(ResendTapped{}))
	require.Equal(t, VerifyIdle, f.View().Verify.Status)

	// The stale result must be discarded, not turned into an error.
	bv.results <- verify.Reject("bad code")
	time.Sleep(50 * time.Millisecond)

	v := f.View()
	assert.Equal(t, VerifyIdle, v.Verify.Status)
	assert.Equal(t, "", bufferString(v))
	assert.Equal(t, 0, f.Attempts())
}

func TestDispatchAfterCloseFails(t *testing.T) {
	f, _ := newTestField(t, 4, newBlockingVerifier())
	f.Close()

	err := f.Dispatch(EnterDigit{Digit: 1, Index: 0})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, f.Start(), ErrClosed)

	// Close is idempotent.
	f.Close()
}

func TestCloseDiscardsInFlightVerification(t *testing.T) {
	bv := newBlockingVerifier()
	f, rec := newTestField(t, 4, bv)

	require.NoError(t, f.Dispatch(Paste{Text: "1234"}))
	<-bv.calls

	f.Close()
	bv.results <- nil
	time.Sleep(50 * time.Millisecond)

	// No success notification after teardown.
	_, _, successes, _ := rec.counts()
	assert.Equal(t, 0, successes)
}

func TestTimerPausedDuringLoading(t *testing.T) {
	bv := newBlockingVerifier()
	f, err := New(Options{
		Length:        4,
		ResendSeconds: 30,
		Verifier:      bv,
		TickInterval:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, f.Start())
	t.Cleanup(f.Close)

	require.NoError(t, f.Dispatch(Paste{Text: "1234"}))
	<-bv.calls

	paused := f.View().Remaining
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, paused, f.View().Remaining, "no tick lands while loading")

	bv.results <- nil
	require.Eventually(t, func() bool {
		return f.View().Verify.Status == VerifySuccess
	}, time.Second, 5*time.Millisecond)

	// Success never resumes the countdown.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, paused, f.View().Remaining)
}
