// Package retry runs operations with exponential backoff and jitter.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, or maxRetries
// retries are spent. maxRetries of 0 means a single attempt.
//
// Backoff: delay = initialDelay * 2^attempt, ±25% jitter. With a 1s
// initial delay the retries wait roughly 1s, 2s, 4s.
func Do(ctx context.Context, maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *permanentError
		if errors.As(err, &permErr) {
			return permErr.err
		}

		if attempt == maxRetries {
			break
		}

		if err := Sleep(ctx, backoff(initialDelay, attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

func backoff(initial time.Duration, attempt int) time.Duration {
	delay := initial << attempt
	half := int64(delay) / 2
	if half <= 0 {
		return delay
	}
	jitter, err := rand.Int(rand.Reader, big.NewInt(half))
	if err != nil {
		return delay
	}
	return delay - delay/4 + time.Duration(jitter.Int64())
}

// Sleep waits for d, returning early with the context error on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
