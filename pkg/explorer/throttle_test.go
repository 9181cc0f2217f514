package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleSerializesCalls(t *testing.T) {
	throttle := NewThrottle(20 * time.Millisecond)

	var inFlight, maxInFlight int32
	var starts []time.Time
	var lock sync.Mutex

	wg := &sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := throttle.Do(context.Background(), "test", func() error {
				n := atomic.AddInt32(&inFlight, 1)
				defer atomic.AddInt32(&inFlight, -1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				lock.Lock()
				starts = append(starts, time.Now())
				lock.Unlock()
				time.Sleep(2 * time.Millisecond)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxInFlight)
	require.Len(t, starts, 5)
	for i := 1; i < len(starts); i++ {
		// allow some scheduling slack
		require.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), 15*time.Millisecond)
	}
}

func TestThrottleHonorsContext(t *testing.T) {
	throttle := NewThrottle(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := throttle.Do(ctx, "test", func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestThrottleIgnoresRateLimitsInBreaker(t *testing.T) {
	throttle := NewThrottle(time.Microsecond)

	for i := 0; i < 30; i++ {
		err := throttle.Do(context.Background(), "test", func() error {
			return fmt.Errorf("%w: slow down", ErrRateLimited)
		})
		require.ErrorIs(t, err, ErrRateLimited)
	}

	err := throttle.Do(context.Background(), "test", func() error { return nil })
	require.NoError(t, err)
}

func TestThrottleOpensOnSustainedFailures(t *testing.T) {
	throttle := NewThrottle(time.Microsecond)
	failure := fmt.Errorf("%w: boom", ErrMalformedResponse)

	var lastErr error
	for i := 0; i < 30; i++ {
		lastErr = throttle.Do(context.Background(), "test", func() error {
			return failure
		})
	}
	require.ErrorIs(t, lastErr, ErrServiceUnavailable)
	require.True(t, IsRetryable(lastErr))
	require.True(t, errors.Is(lastErr, ErrExternalService))
}
