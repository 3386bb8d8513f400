package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff retry behavior, grounded on
// the Rust original's resilience/retry.rs RetryConfig.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            float64
}

// DefaultRetryConfig mirrors the Rust original's Default impl.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// RetryPolicy executes an operation with exponential backoff between
// failed attempts.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy returns a RetryPolicy using config.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	return &RetryPolicy{config: config}
}

// Execute runs op, retrying on error up to config.MaxRetries additional
// times with exponential backoff (capped at MaxDelay, randomized by
// Jitter), or until ctx is cancelled. Returns the last error if every
// attempt fails.
func (p *RetryPolicy) Execute(ctx context.Context, op func(context.Context) error) error {
	delay := p.config.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.jittered(delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay = time.Duration(float64(delay) * p.config.BackoffMultiplier)
			if delay > p.config.MaxDelay {
				delay = p.config.MaxDelay
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p *RetryPolicy) jittered(delay time.Duration) time.Duration {
	if p.config.Jitter <= 0 {
		return delay
	}
	spread := float64(delay) * p.config.Jitter
	offset := (rand.Float64()*2 - 1) * spread
	jittered := float64(delay) + offset
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}
