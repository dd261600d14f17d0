package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
)

var (
	ErrCircuitBreakerOpen    = errors.New("circuit breaker is open")
	ErrCircuitBreakerTimeout = errors.New("circuit breaker operation timeout")
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig defines configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int

	// Timeout is how long the circuit stays open before probing again
	Timeout time.Duration

	// MaxConcurrentRequests is the max requests allowed in Half-Open state
	MaxConcurrentRequests int

	// SuccessThreshold is the number of consecutive successes needed in Half-Open to go to Closed
	SuccessThreshold int

	// RequestTimeout bounds a single call. Zero means no bound.
	RequestTimeout time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// OnStateChange is called without locks held after every transition.
	OnStateChange func(from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns a default configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:           5,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      3,
		RequestTimeout:        10 * time.Second,
	}
}

// CircuitBreaker stops calling a failing backend for a while and lets a
// limited number of trials through before trusting it again.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	clock  clock.Clock

	mu       sync.Mutex
	state    CircuitBreakerState
	failures int
	// successes counts consecutive successes in half-open state
	successes int
	// requests counts trials in flight in half-open state
	requests int
	openedAt time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	c := config.Clock
	if c == nil {
		c = clock.New()
	}
	if config.MaxConcurrentRequests <= 0 {
		config.MaxConcurrentRequests = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{config: config, clock: c}
}

// Execute calls fn unless the circuit is open. A call that fails or exceeds
// RequestTimeout counts as a failure; errors from fn are returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	if cb.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.config.RequestTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrCircuitBreakerTimeout
	}
	cb.afterRequest(trial, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() (trial bool, err error) {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return false, nil
	case StateOpen:
		if cb.clock.Since(cb.openedAt) < cb.config.Timeout {
			cb.mu.Unlock()
			return false, ErrCircuitBreakerOpen
		}
		cb.setHalfOpen()
	}
	if cb.requests >= cb.config.MaxConcurrentRequests {
		cb.mu.Unlock()
		return false, ErrCircuitBreakerOpen
	}
	cb.requests++
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return true, nil
}

func (cb *CircuitBreaker) afterRequest(trial bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if trial && cb.state == StateHalfOpen {
		cb.requests--
	}
	switch {
	case err == nil && cb.state == StateClosed:
		cb.failures = 0
	case err == nil && cb.state == StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.setClosed()
		}
	case err != nil && cb.state == StateClosed:
		cb.failures++
		if cb.failures >= cb.config.MaxFailures {
			cb.setOpen()
		}
	case err != nil && cb.state == StateHalfOpen:
		cb.failures++
		cb.setOpen()
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) setClosed() {
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0
}

func (cb *CircuitBreaker) setOpen() {
	cb.state = StateOpen
	cb.successes = 0
	cb.openedAt = cb.clock.Now()
}

func (cb *CircuitBreaker) setHalfOpen() {
	cb.state = StateHalfOpen
	cb.successes = 0
	cb.requests = 0
}

// State returns the current state of the circuit breaker. An open circuit
// whose timeout elapsed still reports open until the next call tries it.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.setClosed()
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

// CircuitBreakerStats is a snapshot of the breaker counters.
type CircuitBreakerStats struct {
	State     CircuitBreakerState
	Failures  int
	Successes int
	Requests  int
}

// Stats returns current statistics
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		State:     cb.state,
		Failures:  cb.failures,
		Successes: cb.successes,
		Requests:  cb.requests,
	}
}
