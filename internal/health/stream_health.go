package health

import (
	"sync"
	"time"

	"github.com/streamvault/streamvault-go/internal/logging"
)

// StreamHealthState is the tagged health variant for a single stream.
// Failed is terminal until the stream is removed and re-added.
type StreamHealthState int

const (
	StreamHealthy StreamHealthState = iota
	StreamDegraded
	StreamUnhealthy
	StreamFailed
)

func (s StreamHealthState) String() string {
	switch s {
	case StreamHealthy:
		return "healthy"
	case StreamDegraded:
		return "degraded"
	case StreamUnhealthy:
		return "unhealthy"
	case StreamFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StreamHealth is the full computed health of one stream: state plus the
// human-readable reason for Degraded/Unhealthy/Failed.
type StreamHealth struct {
	StreamID  string
	State     StreamHealthState
	Reason    string
	UpdatedAt time.Time
}

// SourceStats mirrors the monotonically non-decreasing counters a
// source publishes for health evaluation.
type SourceStats struct {
	ConsecutiveFailures int
	RetryCount          int
	BytesReceived       int64
	BufferingPercent    float64
	LastFrameAt         time.Time
	HasReceivedFrame    bool
}

// ThresholdConfig configures the transition rules evaluated in
// evaluateState.
type ThresholdConfig struct {
	MaxConsecutiveFailures int
	FrameTimeout           time.Duration
	MaxRetriesUnhealthy    int
	MaxRetriesDegraded     int
	MinBufferingPercent    float64
}

// DefaultThresholdConfig returns the defaults used when a stream's
// config does not override any threshold.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		MaxConsecutiveFailures: 5,
		FrameTimeout:           10 * time.Second,
		MaxRetriesUnhealthy:    10,
		MaxRetriesDegraded:     3,
		MinBufferingPercent:    20,
	}
}

// StreamRemover is implemented by the stream manager: health monitor
// calls it to evict streams whose removal grace period has elapsed.
type StreamRemover interface {
	RemoveStream(streamID string) error
}

type pendingRemoval struct {
	streamID string
	at       time.Time
}

// StreamMonitor evaluates each registered stream's health on a
// configurable interval, generalizing HealthMonitor's single-process
// component table to per-stream health with auto-removal of streams
// stuck Failed past a grace period.
type StreamMonitor struct {
	mu          sync.Mutex
	thresholds  map[string]ThresholdConfig
	defaultCfg  ThresholdConfig
	stats       map[string]SourceStats
	health      map[string]StreamHealth
	removals    map[string]pendingRemoval
	autoRemove  bool
	grace       time.Duration
	remover     StreamRemover
	logger      *logging.Logger
	onChange    func(streamID string, prev, next StreamHealth)
	stop        chan struct{}
	wg          sync.WaitGroup
}

// NewStreamMonitor constructs a StreamMonitor. onChange, if non-nil, is
// invoked synchronously whenever a stream's computed state changes
// (the intended hook for emitting a StreamHealthChanged event).
func NewStreamMonitor(defaultCfg ThresholdConfig, autoRemove bool, grace time.Duration, remover StreamRemover, logger *logging.Logger, onChange func(string, StreamHealth, StreamHealth)) *StreamMonitor {
	m := &StreamMonitor{
		thresholds: make(map[string]ThresholdConfig),
		defaultCfg: defaultCfg,
		stats:      make(map[string]SourceStats),
		health:     make(map[string]StreamHealth),
		removals:   make(map[string]pendingRemoval),
		autoRemove: autoRemove,
		grace:      grace,
		remover:    remover,
		logger:     logger,
		stop:       make(chan struct{}),
	}
	if onChange != nil {
		m.onChange = func(id string, prev, next StreamHealth) { onChange(id, prev, next) }
	}
	return m
}

// Register adds a stream to be monitored, optionally with a
// per-stream threshold override.
func (m *StreamMonitor) Register(streamID string, thresholds *ThresholdConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if thresholds != nil {
		m.thresholds[streamID] = *thresholds
	}
	m.health[streamID] = StreamHealth{StreamID: streamID, State: StreamDegraded, Reason: "no frames yet", UpdatedAt: time.Now()}
	m.stats[streamID] = SourceStats{}
}

// Unregister removes a stream from monitoring (call on stream removal).
func (m *StreamMonitor) Unregister(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.thresholds, streamID)
	delete(m.stats, streamID)
	delete(m.health, streamID)
	delete(m.removals, streamID)
}

// UpdateStatistics feeds fresh source statistics for a stream; the next
// Tick call will evaluate them against thresholds.
func (m *StreamMonitor) UpdateStatistics(streamID string, stats SourceStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[streamID] = stats
}

// Health returns the last computed health for a stream.
func (m *StreamMonitor) Health(streamID string) (StreamHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.health[streamID]
	return h, ok
}

// AllHealth returns a snapshot of every monitored stream's health.
func (m *StreamMonitor) AllHealth() []StreamHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StreamHealth, 0, len(m.health))
	for _, h := range m.health {
		out = append(out, h)
	}
	return out
}

func (m *StreamMonitor) thresholdsFor(streamID string) ThresholdConfig {
	if t, ok := m.thresholds[streamID]; ok {
		return t
	}
	return m.defaultCfg
}

// evaluateState implements the ordered threshold rules.
func evaluateState(stats SourceStats, cfg ThresholdConfig, now time.Time) (StreamHealthState, string) {
	if stats.ConsecutiveFailures >= cfg.MaxConsecutiveFailures {
		return StreamFailed, "too many consecutive failures"
	}
	if !stats.LastFrameAt.IsZero() && now.Sub(stats.LastFrameAt) > cfg.FrameTimeout {
		return StreamUnhealthy, "no frames for " + now.Sub(stats.LastFrameAt).String()
	}
	if stats.RetryCount > cfg.MaxRetriesUnhealthy {
		return StreamUnhealthy, "excessive retries"
	}
	if stats.RetryCount > cfg.MaxRetriesDegraded {
		return StreamDegraded, "high retry count"
	}
	if stats.BufferingPercent < cfg.MinBufferingPercent {
		return StreamDegraded, "low buffering"
	}
	if !stats.HasReceivedFrame {
		return StreamDegraded, "no frames yet"
	}
	return StreamHealthy, ""
}

// Tick runs one evaluation pass over every registered stream, then
// processes pending removals whose grace period has elapsed.
func (m *StreamMonitor) Tick() {
	now := time.Now()

	m.mu.Lock()
	type change struct {
		streamID   string
		prev, next StreamHealth
	}
	var changes []change

	for streamID, stats := range m.stats {
		cfg := m.thresholdsFor(streamID)
		state, reason := evaluateState(stats, cfg, now)
		prev := m.health[streamID]
		if prev.State == state && prev.Reason == reason {
			continue
		}
		next := StreamHealth{StreamID: streamID, State: state, Reason: reason, UpdatedAt: now}
		m.health[streamID] = next
		changes = append(changes, change{streamID, prev, next})

		switch {
		case state == StreamFailed && m.autoRemove:
			m.removals[streamID] = pendingRemoval{streamID: streamID, at: now.Add(m.grace)}
		case state == StreamHealthy:
			delete(m.removals, streamID)
		}
	}

	var toRemove []string
	for streamID, r := range m.removals {
		if !now.Before(r.at) {
			toRemove = append(toRemove, streamID)
		}
	}
	m.mu.Unlock()

	for _, c := range changes {
		if m.onChange != nil {
			m.onChange(c.streamID, c.prev, c.next)
		}
	}

	for _, streamID := range toRemove {
		if m.remover != nil {
			if err := m.remover.RemoveStream(streamID); err != nil && m.logger != nil {
				m.logger.WithField("stream_id", streamID).WithError(err).Warn("failed to remove stream past grace period")
			}
		}
		m.mu.Lock()
		delete(m.removals, streamID)
		m.mu.Unlock()
	}
}

// Start runs Tick on interval until Stop is called or ctx-equivalent
// stop channel closes.
func (m *StreamMonitor) Start(interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Tick()
			}
		}
	}()
}

// Stop halts the periodic evaluation loop.
func (m *StreamMonitor) Stop() {
	close(m.stop)
	m.wg.Wait()
}
