package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// MaxNumOfFailingRequests ...
	MaxNumOfFailingRequests = 10
	// FailingRatio ...
	FailingRatio = 0.6
	// OpenTimeout is the period the breaker stays open before letting a
	// probe request through.
	OpenTimeout = 60 * time.Second
)

// NewCircuitBreaker is a factory function returning a *gobreaker.CircuitBreaker
// with a default state-changing function that activates if the overall number
// of failing requests have reached a tweakable MaxNumOfFailingRequests cap and
// the failing ratio has met the FailingRatio.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
	})
}

// Execute runs fn through the given breaker. Errors for which isFailure
// returns false are handed back to the caller without being accounted as
// breaker failures.
func Execute[T any](
	cb *gobreaker.CircuitBreaker,
	fn func() (T, error),
	isFailure func(error) bool,
) (T, error) {
	var zero T
	var ignoredErr error

	res, err := cb.Execute(func() (interface{}, error) {
		v, err := fn()
		if err != nil && isFailure != nil && !isFailure(err) {
			ignoredErr = err
			return v, nil
		}
		return v, err
	})
	if ignoredErr != nil {
		return zero, ignoredErr
	}
	if err != nil {
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// IsOpen returns whether the error has been returned because the breaker
// rejected the request.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}
