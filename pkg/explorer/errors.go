package explorer

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrExternalService is the root of every error returned by the explorer.
	ErrExternalService = errors.New("external service error")
	// ErrRateLimited is returned when the explorer refuses a request
	// because the quota has been exceeded.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrExternalService)
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = fmt.Errorf("%w: not found", ErrExternalService)
	// ErrTimeout is returned when the explorer did not answer in time.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrExternalService)
	// ErrMalformedResponse is returned for unexpected statuses or bodies.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrExternalService)
	// ErrServiceUnavailable is returned while the circuit breaker is open.
	ErrServiceUnavailable = fmt.Errorf("%w: service unavailable", ErrExternalService)
)

// IsRetryable returns whether the given error is a transient failure that
// may succeed if the request is repeated later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServiceUnavailable)
}

// StatusError maps a non successful HTTP status code to the explorer error
// taxonomy.
func StatusError(status int, body string) error {
	switch status {
	case 429:
		return fmt.Errorf("%w: %s", ErrRateLimited, truncate(body))
	case 404:
		return fmt.Errorf("%w: %s", ErrNotFound, truncate(body))
	case 408, 504:
		return fmt.Errorf("%w: status %d", ErrTimeout, status)
	default:
		return fmt.Errorf(
			"%w: unexpected status %d: %s", ErrMalformedResponse, status, truncate(body),
		)
	}
}

// TransportError maps an error returned by the http client to the explorer
// error taxonomy.
func TransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s", ErrMalformedResponse, err)
}

func truncate(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
