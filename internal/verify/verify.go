// Package verify defines the asynchronous verifier a PIN field calls once
// its buffer is complete, plus the implementations shipped with the demos.
package verify

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// GenericFailureMessage is shown when a verifier faults rather than
// returning a clean rejection. It is the only message a fault can surface.
const GenericFailureMessage = "Something went wrong. Please try again."

// IncorrectCodeMessage is the rejection message for a wrong code.
const IncorrectCodeMessage = "Incorrect code. Please try again."

// Verifier checks a complete code string. A nil error means the code was
// accepted. A *Failure carries a user-visible rejection message; any other
// error is treated as a fault and surfaced with GenericFailureMessage.
type Verifier interface {
	Verify(ctx context.Context, code string) error
}

// Failure is a clean rejection with a message meant for the user.
type Failure struct {
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

// Reject returns a Failure with the given message.
func Reject(message string) error {
	return &Failure{Message: message}
}

// UserMessage extracts the user-visible message from a verifier error.
// Faults map to GenericFailureMessage.
func UserMessage(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return GenericFailureMessage
}

// Func adapts a plain function to the Verifier interface.
type Func func(ctx context.Context, code string) error

// Verify implements Verifier.
func (f Func) Verify(ctx context.Context, code string) error {
	return f(ctx, code)
}

// Bcrypt verifies codes against a stored bcrypt hash, so the expected code
// never lives in memory or config in the clear. An optional latency
// simulates a network round-trip in the demo front-ends.
type Bcrypt struct {
	hash    []byte
	latency time.Duration
}

// NewBcrypt returns a verifier for the given bcrypt hash.
func NewBcrypt(hash string, latency time.Duration) *Bcrypt {
	return &Bcrypt{hash: []byte(hash), latency: latency}
}

// HashCode produces a bcrypt hash for a code, for config generation.
func HashCode(code string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify implements Verifier. A hash mismatch is a clean rejection; a
// malformed hash is a fault.
func (b *Bcrypt) Verify(ctx context.Context, code string) error {
	if b.latency > 0 {
		select {
		case <-time.After(b.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := bcrypt.CompareHashAndPassword(b.hash, []byte(code))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return Reject(IncorrectCodeMessage)
	}
	return err
}
