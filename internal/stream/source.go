package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamvault/streamvault-go/internal/logging"
)

// Dialer connects to a stream's upstream URI and returns a FrameSource
// delivering its decoded output. Production code dials through the
// ffmpeg subprocess backend (FFmpegDialer); tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, uri string, bufferSize int) (FrameSource, error)
}

// FrameSource is the decoded-media outlet a Dialer hands back. Frames
// arrive on Frames(); the source is torn down via Close().
type FrameSource interface {
	Frames() <-chan Frame
	Close() error
}

// Source wraps one upstream URI with automatic reconnect and optional
// fallback content, using a ctx/cancel pair and an atomic connected
// flag around its long-running reconnect loop.
type Source struct {
	id     string
	cfg    Config
	kind   Kind
	dialer Dialer
	logger *logging.Logger

	outlet chan Frame

	mu    sync.RWMutex
	stats Statistics

	connected int32 // atomic bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSource constructs a Source. dialer may be a fake in tests.
func NewSource(cfg Config, dialer Dialer, logger *logging.Logger) *Source {
	bufSize := cfg.BufferSizeHint
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Source{
		id:     cfg.ID,
		cfg:    cfg,
		kind:   ClassifyURI(cfg.URI),
		dialer: dialer,
		logger: logger,
		outlet: make(chan Frame, bufSize),
	}
}

// SourceHandle returns the decoded-media outlet. Pads/format are
// negotiated dynamically; callers simply range over it.
func (s *Source) SourceHandle() <-chan Frame {
	return s.outlet
}

// Statistics returns a point-in-time copy of the source's counters.
func (s *Source) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// IsConnected reports whether the current reconnect attempt is live.
func (s *Source) IsConnected() bool {
	return atomic.LoadInt32(&s.connected) == 1
}

// Start begins the reconnect loop in a background goroutine. Failed
// dials are retried for every kind of source, up to
// MaxReconnectAttempts when that is positive. Only rtsp-class sources
// reconnect after end-of-stream; other kinds stop once their stream
// ends.
func (s *Source) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop tears down the reconnect loop and closes the outlet.
func (s *Source) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Source) run() {
	defer s.wg.Done()
	defer close(s.outlet)

	attempts := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		fs, err := s.dialer.Dial(s.ctx, s.cfg.URI, cap(s.outlet))
		if err != nil {
			s.recordFailure()
			attempts++
			if s.cfg.MaxReconnectAttempts > 0 && attempts >= s.cfg.MaxReconnectAttempts {
				if s.logger != nil {
					s.logger.WithField("stream_id", s.id).Warn("max reconnect attempts exceeded")
				}
				return
			}
			if s.cfg.ImmediateFallback {
				s.emitFallback()
			}
			if !s.sleepOrDone(s.retryDelay()) {
				return
			}
			continue
		}

		atomic.StoreInt32(&s.connected, 1)
		s.drain(fs)
		atomic.StoreInt32(&s.connected, 0)
		fs.Close()

		if s.kind != KindRTSP {
			return
		}
		if !s.sleepOrDone(s.retryDelay()) {
			return
		}
	}
}

func (s *Source) drain(fs FrameSource) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-fs.Frames():
			if !ok {
				return
			}
			s.recordFrame(frame)
			select {
			case s.outlet <- frame:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *Source) recordFrame(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.BytesReceived += int64(len(f.Data))
	s.stats.LastFrameTimestamp = f.PTS
	s.stats.HasReceivedFrame = true
	s.stats.ConsecutiveFailures = 0
}

func (s *Source) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.RetryCount++
	s.stats.ConsecutiveFailures++
}

// fallbackFrameData marks a synthetic stand-in frame pushed while the
// upstream is unreachable with ImmediateFallback set, mirroring
// fallbacksrc's own immediate-fallback content (a blank/test-pattern
// buffer rather than silence downstream).
var fallbackFrameData = []byte("streamvault:fallback-frame")

// emitFallback records the fallback-retry counter and, mirroring
// fallbacksrc's immediate-fallback behavior, pushes one synthetic
// stand-in frame onto the outlet so branches fed by this source never
// stall waiting for the real upstream to come back. Marked as a
// keyframe so a recording branch with no segment open yet can still
// open one from it.
func (s *Source) emitFallback() {
	s.mu.Lock()
	s.stats.FallbackRetryCount++
	s.mu.Unlock()

	frame := Frame{Data: fallbackFrameData, PTS: time.Now(), IsKeyframe: true}
	select {
	case s.outlet <- frame:
	case <-s.ctx.Done():
	default:
		if s.logger != nil {
			s.logger.WithField("stream_id", s.id).Warn("fallback frame dropped: outlet full")
		}
	}
}

func (s *Source) retryDelay() time.Duration {
	if s.cfg.RetryTimeout > 0 {
		return s.cfg.RetryTimeout
	}
	return time.Second
}

func (s *Source) sleepOrDone(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
