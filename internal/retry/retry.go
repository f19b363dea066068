// Package retry provides the bounded-retry combinator shared by the
// pipeline's overflow, repair, and capability-failure paths.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Permanent marks an error as non-retryable. Attempt stops immediately when
// fn returns a Permanent error and unwraps it.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Stop wraps err so Attempt will not retry it.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// Attempt calls fn up to maxTries times, sleeping backoff between tries
// (doubling each time). The attempt number passed to fn is 1-based. It
// returns nil on the first success, the unwrapped error if fn signalled
// Stop, ctx.Err if the context is cancelled while waiting, and otherwise
// the last error wrapped with the try count.
func Attempt(ctx context.Context, maxTries int, backoff time.Duration, fn func(try int) error) error {
	if maxTries < 1 {
		return fmt.Errorf("retry: maxTries must be >= 1, got %d", maxTries)
	}

	var lastErr error
	for try := 1; try <= maxTries; try++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(try)
		if lastErr == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return perm.Err
		}

		if try < maxTries && backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("retry: %d tries exhausted: %w", maxTries, lastErr)
}
