package voicecache

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

// Retry is an exponential backoff policy.
type Retry struct {
	Attempts int
	Delay    time.Duration // wait before the second attempt, doubled after each
}

// DefaultRetry makes three attempts, waiting 1s then 2s.
func DefaultRetry() Retry {
	return Retry{Attempts: 3, Delay: time.Second}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls op until it succeeds, returns a Permanent error, the attempts
// run out or ctx ends. The last error is returned unwrapped.
func (r Retry) Do(ctx context.Context, clock clockwork.Clock, op func() error) error {
	attempts := max(r.Attempts, 1)
	delay := r.Delay

	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(delay):
		}
		delay *= 2
	}
	return err
}
