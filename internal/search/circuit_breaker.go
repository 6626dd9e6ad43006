package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/metrics"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open: search backend unavailable")

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // Normal operation
	StateOpen                                // Failing fast
	StateHalfOpen                            // Probing recovery
)

func (s CircuitBreakerState) String() string {
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

// CircuitBreaker fails search calls fast after repeated transient failures.
// After failureThreshold consecutive failures the circuit opens for openDuration.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration
	halfOpenMaxCalls int

	state             CircuitBreakerState
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int

	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker: 5 failures, 30s open.
func NewCircuitBreaker() *CircuitBreaker {
	metrics.SearchCircuitBreakerState.Set(float64(StateClosed))
	return &CircuitBreaker{
		failureThreshold: 5,
		openDuration:     30 * time.Second,
		halfOpenMaxCalls: 1,
		state:            StateClosed,
		now:              time.Now,
	}
}

func (cb *CircuitBreaker) setState(s CircuitBreakerState) {
	if cb.state != s {
		cb.state = s
		metrics.SearchCircuitBreakerState.Set(float64(s))
	}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.openDuration {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.halfOpenCallCount = 1
	case StateHalfOpen:
		if cb.halfOpenCallCount >= cb.halfOpenMaxCalls {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.halfOpenCallCount++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		if !isBreakerFailure(err) {
			cb.failureCount = 0
			return err
		}
		cb.failureCount++
		cb.lastFailureTime = cb.now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen)
			cb.halfOpenCallCount = 0
		}
		return err
	}
	cb.failureCount = 0
	if cb.state != StateClosed {
		cb.setState(StateClosed)
		cb.halfOpenCallCount = 0
	}
	return nil
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// isBreakerFailure reports errors that indicate the backend itself is unhealthy.
func isBreakerFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if isRetryable(err) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "no such host", "i/o timeout", "unreachable"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
