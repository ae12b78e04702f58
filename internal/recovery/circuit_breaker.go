package recovery

import (
	"sync"
	"time"

	"github.com/streamvault/streamvault-go/internal/apperrors"
)

// CircuitState is one of the three circuit breaker states from
// three-state breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker is a three-state gate that short-circuits calls after a
// burst of failures and periodically probes for recovery. The
// Open->HalfOpen transition is evaluated lazily on every state read
// rather than by a background timer, matching the original source's
// check_state-on-access pattern.
type CircuitBreaker struct {
	name string

	mu              sync.Mutex
	state           CircuitState
	lastFailureTime time.Time

	failureCount         uint32
	successCount         uint32
	halfOpenRequests     uint32

	failureThreshold    uint32
	successThreshold    uint32
	timeout             time.Duration
	maxHalfOpenRequests uint32
}

// NewCircuitBreaker constructs a circuit breaker. maxHalfOpenRequests
// defaults to 3 when 0 is passed.
func NewCircuitBreaker(name string, failureThreshold, successThreshold uint32, timeout time.Duration, maxHalfOpenRequests uint32) *CircuitBreaker {
	if maxHalfOpenRequests == 0 {
		maxHalfOpenRequests = 3
	}
	return &CircuitBreaker{
		name:                name,
		state:               CircuitClosed,
		failureThreshold:    failureThreshold,
		successThreshold:    successThreshold,
		timeout:             timeout,
		maxHalfOpenRequests: maxHalfOpenRequests,
	}
}

// checkState must be called with mu held. It promotes Open to HalfOpen
// once the timeout has elapsed since the last failure.
func (cb *CircuitBreaker) checkState() {
	if cb.state == CircuitOpen && !cb.lastFailureTime.IsZero() {
		if time.Since(cb.lastFailureTime) >= cb.timeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenRequests = 0
			cb.successCount = 0
		}
	}
}

// CanAttempt reports whether a call is allowed right now. In HalfOpen
// it admits up to maxHalfOpenRequests concurrent probes and counts this
// call against that budget if admitted.
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.checkState()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		return false
	case CircuitHalfOpen:
		if cb.halfOpenRequests < cb.maxHalfOpenRequests {
			cb.halfOpenRequests++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess registers a successful call. In Closed state it resets
// the failure counter; in HalfOpen it counts toward success_threshold
// and closes the breaker once reached.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.checkState()

	cb.successCount++
	switch cb.state {
	case CircuitHalfOpen:
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.resetCounters()
		}
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitOpen:
		// Spurious; ignore.
	}
}

// RecordFailure registers a failed call. Closed->Open at threshold; any
// failure in HalfOpen reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.checkState()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.resetCounters()
	case CircuitOpen:
		// Already open.
	}
}

func (cb *CircuitBreaker) resetCounters() {
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenRequests = 0
}

// State returns the current state, resolving a pending Open->HalfOpen
// transition first.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.checkState()
	return cb.state
}

func (cb *CircuitBreaker) FailureCount() uint32 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// Reset forces the breaker back to Closed with all counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.resetCounters()
	cb.lastFailureTime = time.Time{}
}

// Call wraps an operation: if the breaker denies the attempt it returns
// a RecoveryError{CircuitBreakerOpen} without invoking op; otherwise it
// records the outcome of op against the breaker.
func (cb *CircuitBreaker) Call(op string, fn func() error) error {
	if !cb.CanAttempt() {
		return apperrors.Recovery(op, apperrors.RecoveryCircuitBreakerOpen,
			"circuit breaker "+cb.name+" is open", nil)
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
