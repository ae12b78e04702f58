/*
Manager implements the recovery loop per component, composing backoff,
circuit breaker, and snapshot rollback behind a pluggable handler.

Requirements Coverage:
- REQ-REC-005: Classification-driven recovery loop (Transient/
  Recoverable/Fatal/Cascade)
- REQ-REC-006: max_retries enforcement and consecutive-success reset
*/
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/streamvault/streamvault-go/internal/apperrors"
	"github.com/streamvault/streamvault-go/internal/logging"
)

// Handler attempts to recover a component using the most recent
// snapshot. Returning nil means the component is considered recovered.
type Handler func(ctx context.Context, snap *Snapshot) error

// componentState tracks per-component recovery bookkeeping.
type componentState struct {
	backoff            *Backoff
	breaker            *CircuitBreaker
	consecutiveSuccess int
	attempts           int
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	MaxRetries       int
	SuccessThreshold int
	BackoffKind      BackoffKind
	BaseDelay        time.Duration
	MaxDelay         time.Duration

	// BreakerFailureThreshold/BreakerSuccessThreshold/BreakerTimeout
	// configure the per-component CircuitBreaker that gates retryLoop.
	BreakerFailureThreshold uint32
	BreakerSuccessThreshold uint32
	BreakerTimeout          time.Duration
}

// Manager coordinates recovery attempts across components.
type Manager struct {
	cfg      ManagerConfig
	logger   *logging.Logger
	snapshots *SnapshotStore

	mu         sync.Mutex
	states     map[string]*componentState
	handlers   map[string]Handler
	inProgress map[string]bool
}

// NewManager constructs a recovery Manager backed by the given snapshot
// store.
func NewManager(cfg ManagerConfig, snapshots *SnapshotStore, logger *logging.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerSuccessThreshold == 0 {
		cfg.BreakerSuccessThreshold = 2
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	return &Manager{
		cfg:        cfg,
		logger:     logger,
		snapshots:  snapshots,
		states:     make(map[string]*componentState),
		handlers:   make(map[string]Handler),
		inProgress: make(map[string]bool),
	}
}

// RegisterHandler attaches a recovery handler for a component id.
func (m *Manager) RegisterHandler(componentID string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[componentID] = h
}

func (m *Manager) stateFor(componentID string) *componentState {
	st, ok := m.states[componentID]
	if !ok {
		st = &componentState{
			backoff: NewBackoff(m.cfg.BackoffKind, m.cfg.BaseDelay, m.cfg.MaxDelay, 0, true),
			breaker: NewCircuitBreaker(componentID, m.cfg.BreakerFailureThreshold, m.cfg.BreakerSuccessThreshold, m.cfg.BreakerTimeout, 0),
		}
		m.states[componentID] = st
	}
	return st
}

// HandleError runs the recovery loop for componentID given the
// classified severity of an error. op names the failing operation for
// error reporting.
func (m *Manager) HandleError(ctx context.Context, componentID, op string, severity Severity) error {
	m.mu.Lock()
	if m.inProgress[componentID] {
		m.mu.Unlock()
		return apperrors.Recovery(op, apperrors.RecoveryDependencyFailure,
			"recovery already in progress for "+componentID, nil)
	}
	m.inProgress[componentID] = true
	st := m.stateFor(componentID)
	handler := m.handlers[componentID]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inProgress[componentID] = false
		m.mu.Unlock()
	}()

	switch severity {
	case Fatal:
		return apperrors.Recovery(op, apperrors.RecoveryFatalError, "fatal error, not retrying", nil)

	case Transient:
		snap, _ := m.snapshots.Latest(componentID)
		if handler == nil {
			m.recordSuccess(componentID, st)
			return nil
		}
		if err := handler(ctx, snap); err != nil {
			return apperrors.Recovery(op, apperrors.RecoveryDependencyFailure, "transient recovery failed", err)
		}
		m.recordSuccess(componentID, st)
		return nil

	case Recoverable, Cascade:
		return m.retryLoop(ctx, componentID, op, st, handler)

	default:
		return apperrors.Recovery(op, apperrors.RecoveryDependencyFailure, "unknown severity", nil)
	}
}

func (m *Manager) retryLoop(ctx context.Context, componentID, op string, st *componentState, handler Handler) error {
	if st.attempts >= m.cfg.MaxRetries {
		return apperrors.Recovery(op, apperrors.RecoveryMaxRetriesExceeded,
			"max retries exceeded for "+componentID, nil)
	}
	if !st.breaker.CanAttempt() {
		return apperrors.Recovery(op, apperrors.RecoveryCircuitBreakerOpen,
			"circuit breaker open for "+componentID, nil)
	}
	st.attempts++

	delay := st.backoff.NextDelay()
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return apperrors.Recovery(op, apperrors.RecoveryTimeout, "recovery canceled", ctx.Err())
	}

	if handler == nil {
		return apperrors.Recovery(op, apperrors.RecoveryNoHandler, "no recovery handler for "+componentID, nil)
	}

	snap, _ := m.snapshots.Latest(componentID)
	if err := handler(ctx, snap); err != nil {
		st.breaker.RecordFailure()
		if m.logger != nil {
			m.logger.WithFields(logging.Fields{
				"component": componentID,
				"attempt":   st.attempts,
			}).WithError(err).Warn("recovery attempt failed")
		}
		return apperrors.Recovery(op, apperrors.RecoveryDependencyFailure, "recovery handler failed", err)
	}

	st.breaker.RecordSuccess()
	m.recordSuccess(componentID, st)
	return nil
}

func (m *Manager) recordSuccess(componentID string, st *componentState) {
	st.consecutiveSuccess++
	if st.consecutiveSuccess >= m.cfg.SuccessThreshold {
		st.attempts = 0
		st.backoff.Reset()
		st.consecutiveSuccess = 0
	}
}

// Attempts returns the current retry-attempt count for a component
// (test/diagnostic use).
func (m *Manager) Attempts(componentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[componentID]
	if !ok {
		return 0
	}
	return st.attempts
}
