// Package resilience provides a circuit breaker, a token-bucket rate
// limiter and a retry policy; the task executor guards infer provider calls
// with a limiter and a breaker and invoke MCP calls with a breaker. Grounded
// on the Rust original's resilience/{circuit_breaker,rate_limiter}.rs.
// No breaker library appears anywhere in the example corpus, so the breaker
// is hand-rolled (see DESIGN.md); the rate limiter uses golang.org/x/time/rate,
// a teacher-adjacent dependency already named in SPEC_FULL.md's domain stack.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures in the closed
	// state before the circuit opens.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before allowing a
	// half-open trial request.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes in the
	// half-open state required to close the circuit.
	SuccessThreshold int
}

// DefaultBreakerConfig mirrors the Rust original's Default impl.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker fails fast once a guarded dependency has exceeded its
// failure threshold, giving it time to recover before trial requests
// resume.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker returns a CircuitBreaker for name with config.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{name: name, config: config, state: StateClosed}
}

// NewCircuitBreakerDefaults returns a CircuitBreaker with
// DefaultBreakerConfig.
func NewCircuitBreakerDefaults(name string) *CircuitBreaker {
	return NewCircuitBreaker(name, DefaultBreakerConfig())
}

// Name returns the guarded dependency's name.
func (b *CircuitBreaker) Name() string { return b.name }

// State returns the current circuit state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ErrOpen is returned by Execute when the circuit is open.
type ErrOpen struct{ Service string }

func (e *ErrOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for %q", e.Service)
}

// Execute runs op through the breaker: fails fast with ErrOpen while open,
// otherwise runs op and records the outcome.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	b.checkRecovery()

	if b.State() == StateOpen {
		return &ErrOpen{Service: b.name}
	}

	err := op(ctx)
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *CircuitBreaker) checkRecovery() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return
	}
	if time.Since(b.lastFailure) >= b.config.RecoveryTimeout {
		b.state = StateHalfOpen
		b.successes = 0
	}
}

func (b *CircuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	case StateOpen:
		b.failures = 0
	}
}

func (b *CircuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
	case StateOpen:
		b.failures++
	}
}
