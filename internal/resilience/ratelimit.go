package resilience

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures a named rate limiter: a token bucket
// refilling at RatePerSecond up to BurstCapacity tokens, grounded on the
// Rust original's resilience/rate_limiter.rs RateLimiterConfig.
type RateLimiterConfig struct {
	RatePerSecond float64
	BurstCapacity int
}

// DefaultRateLimiterConfig mirrors the Rust original's Default impl: a
// generous per-provider ceiling that only engages under sustained load.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{RatePerSecond: 10, BurstCapacity: 20}
}

// RateLimiter wraps golang.org/x/time/rate.Limiter with a name for logging
// and metrics, mirroring the Rust original's named RateLimiter.
type RateLimiter struct {
	name    string
	limiter *rate.Limiter
}

// NewRateLimiter returns a RateLimiter for name with config.
func NewRateLimiter(name string, config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.BurstCapacity),
	}
}

// Name returns the limited dependency's name.
func (r *RateLimiter) Name() string { return r.name }

// TryAcquire reports whether a single token is immediately available,
// consuming it if so, without blocking.
func (r *RateLimiter) TryAcquire() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Registry is a get-or-create cache of named RateLimiters, one per
// dependency name (the executor keys them by provider name), so the
// executor does not need to thread a limiter reference through every call
// site.
type Registry struct {
	mu       sync.Mutex
	config   RateLimiterConfig
	limiters map[string]*RateLimiter
}

// NewRegistry returns a Registry whose limiters all use config.
func NewRegistry(config RateLimiterConfig) *Registry {
	return &Registry{config: config, limiters: make(map[string]*RateLimiter)}
}

// Get returns the limiter for name, creating it on first use.
func (r *Registry) Get(name string) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[name]; ok {
		return l
	}
	l := NewRateLimiter(name, r.config)
	r.limiters[name] = l
	return l
}
