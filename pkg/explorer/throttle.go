package explorer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/escrowd/pkg/circuitbreaker"
	"github.com/tdex-network/escrowd/pkg/stats"
	"go.uber.org/ratelimit"
)

// DefaultMinSpacing is the default minimum time between two calls to the
// explorer.
const DefaultMinSpacing = 1200 * time.Millisecond

// Throttle is the process-wide limiter every outbound call to the explorer
// goes through: at most one call in flight and at least a minimum spacing
// between the start of two consecutive calls. Calls also go through a
// circuit breaker that opens on sustained timeouts and malformed responses.
// Rate-limited and not found responses do not trip the breaker.
type Throttle struct {
	limiter ratelimit.Limiter
	// sem is a channel instead of a mutex so that waiting honors the context.
	sem chan struct{}
	cb  *gobreaker.CircuitBreaker
}

// NewThrottle returns a throttle spacing calls by at least minSpacing.
func NewThrottle(minSpacing time.Duration) *Throttle {
	if minSpacing <= 0 {
		minSpacing = DefaultMinSpacing
	}
	return &Throttle{
		limiter: ratelimit.New(1, ratelimit.Per(minSpacing), ratelimit.WithoutSlack),
		sem:     make(chan struct{}, 1),
		cb:      circuitbreaker.NewCircuitBreaker("explorer"),
	}
}

// Do waits for its turn and runs fn. The method name is only used to label
// metrics.
func (t *Throttle) Do(ctx context.Context, method string, fn func() error) error {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.sem }()

	t.limiter.Take()
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := circuitbreaker.Execute(t.cb, func() (struct{}, error) {
		return struct{}{}, fn()
	}, isBreakerFailure)
	stats.ExplorerCallsTotal.WithLabelValues(method, outcome(err)).Inc()

	if circuitbreaker.IsOpen(err) {
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}
	return err
}

func isBreakerFailure(err error) bool {
	return !errors.Is(err, ErrRateLimited) &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case circuitbreaker.IsOpen(err):
		return "breaker_open"
	default:
		return "error"
	}
}
