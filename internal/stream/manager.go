package stream

import (
	"context"
	"sync"
	"time"

	"github.com/streamvault/streamvault-go/internal/apperrors"
	"github.com/streamvault/streamvault-go/internal/logging"
)

// Recorder is the subset of the recording branch that the stream
// manager drives directly. Defined here (rather than imported) to
// avoid a dependency cycle between stream and recording.
type Recorder interface {
	Start() error
	Stop() error
	IsRecording() bool
}

// RecorderFactory builds a stream's recording branch from its
// fan-out's Recording endpoint, when RecordingEnabled is set.
type RecorderFactory func(streamID string, frames <-chan Frame) (Recorder, error)

// Migratable is implemented by recorders that support zero-frame-loss
// disk migration (internal/recording.Branch does). Callers performing
// a relocation type-assert a Recorder to this interface rather than
// widening Recorder itself for every caller that never migrates.
// BeginMigration finalizes the current segment and redirects
// subsequent frame bytes into buffer instead of discarding them.
// EndMigration stops redirecting, writes drained (buffered while the
// gap was open) into the segment reopened on the new disk, and
// resumes normal delivery.
type Migratable interface {
	BeginMigration(buffer func([]byte) error) error
	EndMigration(ctx context.Context, drained [][]byte) error
}

// Health mirrors the tagged health variant without importing the
// health package (manager only needs to carry it through on update).
type Health struct {
	State  string
	Reason string
}

// Stream is the full runtime state for one managed stream.
type Stream struct {
	ID      string
	Config  Config
	Source  *Source
	Branch  *BranchManager
	Recorder Recorder

	mu     sync.RWMutex
	health Health
	stats  Statistics
}

// Info is the read-only projection returned by GetInfo.
type Info struct {
	ID       string
	Config   Config
	Health   Health
	Stats    Statistics
	Recording bool
}

// Manager owns the id -> Stream map and the stream lifecycle, per the
// stream-manager design: add/remove/get/list/start_recording/
// stop_recording/update_health/update_statistics/shutdown.
type Manager struct {
	dialer          Dialer
	recorderFactory RecorderFactory
	logger          *logging.Logger

	mu      sync.RWMutex
	streams map[string]*Stream

	events chan Event
}

// NewManager constructs a Manager. recorderFactory may be nil if no
// stream ever enables recording. The event channel is unbounded from
// the manager's perspective — large, and sends never block; slow
// subscribers simply miss events.
func NewManager(dialer Dialer, recorderFactory RecorderFactory, logger *logging.Logger) *Manager {
	return &Manager{
		dialer:          dialer,
		recorderFactory: recorderFactory,
		logger:          logger,
		streams:         make(map[string]*Stream),
		events:          make(chan Event, 4096),
	}
}

// Events returns the manager's lifecycle event channel.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		if m.logger != nil {
			m.logger.WithField("kind", string(ev.Kind)).Warn("stream event dropped: subscriber channel full")
		}
	}
}

// Add creates Source+Branch+optional Recording for cfg, wires them,
// and emits StreamAdded. Fails with Conflict if the id already exists.
func (m *Manager) Add(ctx context.Context, cfg Config) (*Stream, error) {
	m.mu.Lock()
	if _, exists := m.streams[cfg.ID]; exists {
		m.mu.Unlock()
		return nil, apperrors.Conflict("stream.add", cfg.ID)
	}

	source := NewSource(cfg, m.dialer, m.logger)
	branch := NewBranchManager(cfg.ID, source, cfg.BufferSizeHint)

	st := &Stream{ID: cfg.ID, Config: cfg, Source: source, Branch: branch}

	if cfg.RecordingEnabled && m.recorderFactory != nil {
		frames, err := branch.CreateBranch(BranchRecording)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		rec, err := m.recorderFactory(cfg.ID, frames)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		st.Recorder = rec
	}

	m.streams[cfg.ID] = st
	m.mu.Unlock()

	source.Start(ctx)
	branch.Start()

	m.emit(Event{Kind: EventStreamAdded, StreamID: cfg.ID})
	return st, nil
}

// Remove tears a stream down in reverse order — recorder, then
// branches, then source — and emits StreamRemoved. Fails with
// StreamNotFound if the id does not exist.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	st, ok := m.streams[id]
	if !ok {
		m.mu.Unlock()
		return apperrors.StreamNotFound("stream.remove", id)
	}
	delete(m.streams, id)
	m.mu.Unlock()

	if st.Recorder != nil {
		if st.Recorder.IsRecording() {
			_ = st.Recorder.Stop()
		}
		if closer, ok := st.Recorder.(interface{ Close() }); ok {
			closer.Close()
		}
	}
	st.Branch.Stop()
	st.Source.Stop()

	m.emit(Event{Kind: EventStreamRemoved, StreamID: id})
	return nil
}

// RemoveStream satisfies health.StreamRemover, letting the stream
// manager serve as the health monitor's eviction target.
func (m *Manager) RemoveStream(streamID string) error {
	return m.Remove(streamID)
}

// Get returns the stream for id.
func (m *Manager) Get(id string) (*Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.streams[id]
	if !ok {
		return nil, apperrors.StreamNotFound("stream.get", id)
	}
	return st, nil
}

// List returns every managed stream's id.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.streams))
	for id := range m.streams {
		out = append(out, id)
	}
	return out
}

// GetInfo returns the full projection for id.
func (m *Manager) GetInfo(id string) (Info, error) {
	st, err := m.Get(id)
	if err != nil {
		return Info{}, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return Info{
		ID:        st.ID,
		Config:    st.Config,
		Health:    st.health,
		Stats:     st.stats,
		Recording: st.Recorder != nil && st.Recorder.IsRecording(),
	}, nil
}

// StartRecording forwards to the stream's recording branch.
func (m *Manager) StartRecording(id string) error {
	st, err := m.Get(id)
	if err != nil {
		return err
	}
	if st.Recorder == nil {
		return apperrors.Recording("stream.start_recording", apperrors.RecordingInvalidConfig, "stream has no recording branch configured", nil)
	}
	return st.Recorder.Start()
}

// StopRecording forwards to the stream's recording branch.
func (m *Manager) StopRecording(id string) error {
	st, err := m.Get(id)
	if err != nil {
		return err
	}
	if st.Recorder == nil {
		return apperrors.Recording("stream.stop_recording", apperrors.RecordingNotRecording, "stream has no recording branch configured", nil)
	}
	return st.Recorder.Stop()
}

// UpdateHealth mutates a stream's health state and emits
// StreamHealthChanged.
func (m *Manager) UpdateHealth(id string, health Health) error {
	st, err := m.Get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	st.health = health
	st.mu.Unlock()
	m.emit(Event{Kind: EventStreamHealthChanged, StreamID: id, Data: map[string]interface{}{"state": health.State, "reason": health.Reason}})
	return nil
}

// UpdateStatistics mutates a stream's statistics and emits
// StatisticsUpdate.
func (m *Manager) UpdateStatistics(id string, stats Statistics) error {
	st, err := m.Get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	st.stats = stats
	st.mu.Unlock()
	m.emit(Event{Kind: EventStatisticsUpdate, StreamID: id})
	return nil
}

// Shutdown removes every stream in turn and waits for the removals to
// finish. When grace elapses first it logs a warning and keeps waiting;
// it has no forced-teardown path, so it returns only once every
// removal has completed.
func (m *Manager) Shutdown(grace time.Duration) {
	m.emit(Event{Kind: EventShutdownRequested})

	m.mu.RLock()
	ids := make([]string, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, id := range ids {
			_ = m.Remove(id)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		if m.logger != nil {
			m.logger.Warn("shutdown grace period elapsed, still waiting for streams to stop")
		}
		<-done
	}
}
