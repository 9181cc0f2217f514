package monitor

import (
	"fmt"
	"time"
)

const (
	DefaultBaseInterval            = 30 * time.Second
	DefaultMaxInterval             = 5 * time.Minute
	DefaultMaxAttempts             = 120
	DefaultConfirmationInterval    = 60 * time.Second
	DefaultConfirmationMaxAttempts = 90
	DefaultRequiredConfirmations   = 1
	// DefaultMaxConsecutiveRateLimits bounds the polls that can be refused by
	// the explorer in a row, since they don't consume the attempt budget.
	DefaultMaxConsecutiveRateLimits = 60
)

// Config holds the polling policy of the payment monitor.
type Config struct {
	BaseInterval             time.Duration
	MaxInterval              time.Duration
	MaxAttempts              int
	ConfirmationInterval     time.Duration
	ConfirmationMaxAttempts  int
	RequiredConfirmations    int
	MaxConsecutiveRateLimits int
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		BaseInterval:             DefaultBaseInterval,
		MaxInterval:              DefaultMaxInterval,
		MaxAttempts:              DefaultMaxAttempts,
		ConfirmationInterval:     DefaultConfirmationInterval,
		ConfirmationMaxAttempts:  DefaultConfirmationMaxAttempts,
		RequiredConfirmations:    DefaultRequiredConfirmations,
		MaxConsecutiveRateLimits: DefaultMaxConsecutiveRateLimits,
	}
}

// Validate returns an error if the policy is not usable.
func (c Config) Validate() error {
	if c.BaseInterval <= 0 {
		return fmt.Errorf("base interval must be positive")
	}
	if c.MaxInterval < c.BaseInterval {
		return fmt.Errorf("max interval must not be lower than base interval")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.ConfirmationInterval <= 0 {
		return fmt.Errorf("confirmation interval must be positive")
	}
	if c.ConfirmationMaxAttempts <= 0 {
		return fmt.Errorf("confirmation max attempts must be positive")
	}
	if c.RequiredConfirmations <= 0 {
		return fmt.Errorf("required confirmations must be positive")
	}
	if c.MaxConsecutiveRateLimits <= 0 {
		return fmt.Errorf("max consecutive rate limits must be positive")
	}
	return nil
}

// backoff doubles the interval up to max.
func backoff(interval, max time.Duration) time.Duration {
	next := interval * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}
