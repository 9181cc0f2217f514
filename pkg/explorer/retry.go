package explorer

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Retry will not repeat the call.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Retry calls fn up to maxAttempts times, doubling the delay between calls
// with +-25% jitter. Only errors for which IsRetryable holds are retried.
func Retry(
	ctx context.Context, maxAttempts int, baseDelay time.Duration,
	fn func() error,
) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}

		jitter := delay / 4
		sleep := delay
		if jitter > 0 {
			sleep = delay - jitter + time.Duration(rand.Int63n(int64(2*jitter+1)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay *= 2
	}

	return err
}
