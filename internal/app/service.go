/*
Package app wires the core components — stream manager, recording
branch factory, storage selector, disk rotation manager, stream health
monitor, and recovery manager — into one running Service.

Requirements Coverage:
- REQ-STR-003: Stream lifecycle and event delivery
- REQ-STO-003: Disk hot-swap with zero-frame-loss write buffering
- REQ-REC-005: Classification-driven recovery loop
*/
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamvault/streamvault-go/internal/common"
	"github.com/streamvault/streamvault-go/internal/config"
	"github.com/streamvault/streamvault-go/internal/health"
	"github.com/streamvault/streamvault-go/internal/logging"
	"github.com/streamvault/streamvault-go/internal/recording"
	"github.com/streamvault/streamvault-go/internal/recovery"
	"github.com/streamvault/streamvault-go/internal/storage"
	"github.com/streamvault/streamvault-go/internal/stream"
)

// Service owns every core component for one running instance and
// implements common.Stoppable for coordinated shutdown.
type Service struct {
	cfg    *config.Config
	logger *logging.Logger

	Recovery *recovery.Manager
	Selector *storage.Selector
	Rotation *storage.Manager
	Health   *health.StreamMonitor
	Streams  *stream.Manager

	pathSel   *pathSelectorAdapter
	relocator *relocatorAdapter

	mu        sync.RWMutex
	isRunning int32
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewService constructs a Service from cfg, wiring every component but
// starting none of them; call Start to begin the running instance.
func NewService(cfg *config.Config, logger *logging.Logger) (*Service, error) {
	events := storage.NewBroadcaster(64)

	cleanupCfg := storage.CleanupConfig{
		Enabled:              cfg.Storage.Cleanup.Enabled,
		MaxSizeGB:            float64(cfg.Storage.Cleanup.MaxSizeGB),
		MaxAge:               time.Duration(cfg.Storage.Cleanup.MaxAgeDays) * 24 * time.Hour,
		MinSegmentsPerStream: cfg.Storage.Cleanup.MinSegmentsPerStream,
	}
	if len(cfg.Storage.Cleanup.PerStreamRetention) > 0 {
		cleanupCfg.PerStreamRetention = make(map[string]time.Duration, len(cfg.Storage.Cleanup.PerStreamRetention))
		for id, days := range cfg.Storage.Cleanup.PerStreamRetention {
			cleanupCfg.PerStreamRetention[id] = time.Duration(days) * 24 * time.Hour
		}
	}

	selector := storage.NewSelector(storage.DiskUsage, cfg.Storage.ProbeInterval, events, logger, cleanupCfg)
	for _, p := range cfg.Storage.Paths {
		path := &storage.Path{
			Name:     p.Name,
			Root:     p.Root,
			Enabled:  p.Enabled,
			Priority: p.Priority,
			MaxUsage: p.MaxUsageGB << 30,
		}
		if len(p.StreamAffinity) > 0 {
			path.Affinity = make(map[string]struct{}, len(p.StreamAffinity))
			for _, id := range p.StreamAffinity {
				path.Affinity[id] = struct{}{}
			}
		}
		selector.AddPath(path)
	}

	pathSel := &pathSelectorAdapter{selector: selector, strategy: storage.StrategyPriority}

	relocator := &relocatorAdapter{}

	rotationCfg := storage.RotationConfig{
		MountRoots:       cfg.Storage.Rotation.MountRoots,
		MinFreeBytes:     cfg.Storage.Rotation.MinFreeBytes,
		BufferCapBytes:   cfg.Storage.Rotation.BufferCapBytes,
		AutoRotate:       cfg.Storage.Rotation.AutoRotate,
		MigrationTimeout: cfg.Storage.Rotation.MigrationTimeout,
		PollInterval:     cfg.Storage.Rotation.PollInterval,
	}
	rotation := storage.NewManager(rotationCfg, relocator, events, logger)
	if len(cfg.Storage.Paths) > 0 {
		rotation.SetActiveDisk(cfg.Storage.Paths[0].Root)
	}
	pathSel.rotation = rotation
	relocator.rotation = rotation

	snapshots := recovery.NewSnapshotStore(10, 100<<20, time.Hour)
	recoveryMgr := recovery.NewManager(recovery.ManagerConfig{
		BackoffKind: recovery.BackoffExponential,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}, snapshots, logger)

	backend := recording.NewFFmpegBackend(logger)
	recCfgFor := func(streamID string) recording.Config {
		rc := recording.DefaultConfig()
		rc.BaseDir = cfg.Recording.BaseDir
		if cfg.Recording.FileNamePattern != "" {
			rc.FileNamePattern = cfg.Recording.FileNamePattern
		}
		if cfg.Recording.SegmentMaxDuration > 0 {
			rc.SegmentMaxDuration = cfg.Recording.SegmentMaxDuration
		}
		if cfg.Recording.Muxer == "mkv" {
			rc.Muxer = recording.MuxerMKV
		}
		rc.IsLive = cfg.Recording.IsLive
		rc.SendKeyframeRequests = cfg.Recording.SendKeyframeRequests
		rc.EnsureNoGaps = cfg.Recording.EnsureNoGaps
		if cfg.Recording.QueueCapacity > 0 {
			rc.QueueCapacity = cfg.Recording.QueueCapacity
		}
		if cfg.Recording.MinThreshold > 0 {
			rc.MinThreshold = cfg.Recording.MinThreshold
		}
		if cfg.Recording.FFmpegBinary != "" {
			rc.FFmpegBinary = cfg.Recording.FFmpegBinary
		}
		return rc
	}
	onError := func(streamID string, err error) {
		logger.WithField("stream_id", streamID).WithError(err).Warn("recording branch reported a terminal error")
		category := recovery.ClassifyMessage(err.Error())
		// HandleError's retry loop sleeps out the backoff delay before
		// returning; onError is invoked from the recording branch's own
		// single frame-draining goroutine, so running it inline here
		// would stall that stream's entire frame path for the sleep
		// duration. Dispatch it instead.
		go func() {
			_ = recoveryMgr.HandleError(context.Background(), "recording:"+streamID, "recording.branch", recovery.Classify(category))
		}()
	}
	recorderFactory := recording.NewRecorderFactory(recCfgFor, pathSel, backend, logger, onError)

	dialer := stream.NewFFmpegDialer(logger)
	streamMgr := stream.NewManager(dialer, recorderFactory, logger)
	relocator.streams = streamMgr

	thresholds := health.ThresholdConfig{
		MaxConsecutiveFailures: cfg.Monitoring.MaxConsecutiveFailures,
		FrameTimeout:           cfg.Monitoring.FrameTimeout,
		MaxRetriesUnhealthy:    cfg.Monitoring.MaxRetriesUnhealthy,
		MaxRetriesDegraded:     cfg.Monitoring.MaxRetriesDegraded,
		MinBufferingPercent:    cfg.Monitoring.MinBufferingPercent,
	}
	if thresholds.MaxConsecutiveFailures == 0 {
		thresholds = health.DefaultThresholdConfig()
	}
	onHealthChange := func(streamID string, prev, next health.StreamHealth) {
		_ = streamMgr.UpdateHealth(streamID, stream.Health{State: next.State.String(), Reason: next.Reason})
	}
	monitor := health.NewStreamMonitor(thresholds, cfg.Monitoring.AutoRemoveFailed, cfg.Monitoring.RemovalGracePeriod, streamMgr, logger, onHealthChange)

	return &Service{
		cfg:       cfg,
		logger:    logger,
		Recovery:  recoveryMgr,
		Selector:  selector,
		Rotation:  rotation,
		Health:    monitor,
		Streams:   streamMgr,
		pathSel:   pathSel,
		relocator: relocator,
	}, nil
}

// Start brings the Service up: stream definitions from config are
// added, the health feed loop begins, and background maintenance
// (storage probing, cleanup sweeps, mount discovery) starts.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if atomic.LoadInt32(&s.isRunning) == 1 {
		return fmt.Errorf("service is already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, sc := range s.cfg.Streams {
		if !sc.Enabled {
			continue
		}
		scfg := streamConfigFromEntry(s.cfg, sc)
		if _, err := s.Streams.Add(s.ctx, scfg); err != nil {
			s.logger.WithField("stream_id", sc.ID).WithError(err).Error("failed to add configured stream")
			continue
		}
		s.Health.Register(sc.ID, nil)
	}

	if len(s.cfg.Storage.Rotation.MountRoots) > 0 {
		if err := s.Rotation.StartMountWatch(s.ctx, "/proc/mounts"); err != nil {
			s.logger.WithError(err).Warn("mount discovery failed to start")
		}
	}

	s.wg.Add(2)
	go s.healthFeedLoop(s.ctx)
	go s.maintenanceLoop(s.ctx)

	atomic.StoreInt32(&s.isRunning, 1)
	s.logger.Info("service started")
	return nil
}

// Stop implements common.Stoppable: every managed stream is torn down
// within the context's deadline, then background loops are halted.
func (s *Service) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.isRunning, 1, 0) {
		return fmt.Errorf("service is not running")
	}

	grace := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		grace = time.Until(dl)
	}
	s.Streams.Shutdown(grace)

	s.cancel()
	s.wg.Wait()
	s.Rotation.Stop()
	s.logger.Info("service stopped")
	return nil
}

var _ common.Stoppable = (*Service)(nil)

// AddStream adds a stream at runtime (the api package's add_stream
// entry point).
func (s *Service) AddStream(ctx context.Context, cfg stream.Config) error {
	if _, err := s.Streams.Add(ctx, cfg); err != nil {
		return err
	}
	s.Health.Register(cfg.ID, nil)
	return nil
}

// RemoveStream removes a stream at runtime.
func (s *Service) RemoveStream(streamID string) error {
	s.Health.Unregister(streamID)
	return s.Streams.Remove(streamID)
}

// healthFeedLoop polls each managed stream's Source statistics into the
// health monitor and evaluates them on the configured interval. Stats
// feed and evaluation run in the same loop iteration deliberately, so
// the monitor never evaluates against stale stats from a separate
// ticker drifting out of phase.
func (s *Service) healthFeedLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.Monitoring.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.Streams.List() {
				st, err := s.Streams.Get(id)
				if err != nil {
					continue
				}
				stats := st.Source.Statistics()
				s.Health.UpdateStatistics(id, health.SourceStats{
					ConsecutiveFailures: stats.ConsecutiveFailures,
					RetryCount:          stats.RetryCount,
					BytesReceived:       stats.BytesReceived,
					BufferingPercent:    stats.BufferingPercent,
					LastFrameAt:         stats.LastFrameTimestamp,
					HasReceivedFrame:    stats.HasReceivedFrame,
				})
			}
			s.Health.Tick()
		}
	}
}

// maintenanceLoop runs the periodic storage probe and retention sweep.
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.Storage.Cleanup.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Selector.ProbeAll(ctx)
			removed, freed := s.Selector.CleanupAll()
			if removed > 0 {
				s.logger.WithField("removed", removed).WithField("bytes_freed", freed).Info("retention sweep completed")
			}
		}
	}
}

func streamConfigFromEntry(cfg *config.Config, sc config.StreamConfig) stream.Config {
	d := cfg.StreamDefaults
	return stream.Config{
		ID:                   sc.ID,
		URI:                  sc.URI,
		Enabled:              sc.Enabled,
		RecordingEnabled:     sc.RecordingEnabled,
		InferenceEnabled:     sc.InferenceEnabled,
		ReconnectTimeout:     d.ReconnectTimeout,
		RestartTimeout:       d.RestartTimeout,
		RetryTimeout:         d.RetryTimeout,
		FrameTimeout:         d.FrameTimeout,
		MaxReconnectAttempts: d.MaxReconnectAttempts,
		BufferSizeHint:       d.BufferSizeHint,
		RepublishTargets:     sc.RepublishTargets,
		ImmediateFallback:    d.ImmediateFallback,
	}
}
