package recording

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/streamvault/streamvault-go/internal/apperrors"
	"github.com/streamvault/streamvault-go/internal/logging"
	"github.com/streamvault/streamvault-go/internal/stream"
)

type ctrlMsg struct {
	fn   func() error
	done chan error
}

// Branch is the recording branch for one stream: a queue (the bounded
// channel handed to it by the branch manager), a recordGate, and a
// segmentWriter, all driven by a single consumer goroutine so state
// transitions never race against frame delivery. It implements
// stream.Recorder.
type Branch struct {
	streamID string
	cfg      Config
	frames   <-chan stream.Frame
	gate     *recordGate
	writer   *segmentWriter
	logger   *logging.Logger
	onError  ErrorHandler

	recording int32 // atomic mirror of gate.recording for IsRecording's lock-free read

	migrating  bool               // touched only from run()'s goroutine: ctrl dispatch and handleFrame both execute there
	migrateBuf func([]byte) error // destination for frame bytes while migrating is true

	ctx    context.Context
	cancel context.CancelFunc
	ctrl   chan ctrlMsg
	done   chan struct{}
}

var (
	_ stream.Recorder   = (*Branch)(nil)
	_ stream.Migratable = (*Branch)(nil)
)

// NewBranch constructs a Branch and starts its consumer goroutine
// immediately; the goroutine consumes frames and passes each one
// through the gate whether or not recording is active.
func NewBranch(streamID string, cfg Config, selector PathSelector, backend SegmentBackend, frames <-chan stream.Frame, logger *logging.Logger, onError ErrorHandler) *Branch {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Branch{
		streamID: streamID,
		cfg:      cfg,
		frames:   frames,
		gate:     newRecordGate(),
		writer:   newSegmentWriter(streamID, cfg, selector, backend, logger),
		logger:   logger,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
		ctrl:     make(chan ctrlMsg),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

// NewRecorderFactory adapts Branch construction to stream.RecorderFactory,
// the seam stream.Manager.Add uses to build a stream's recording branch.
func NewRecorderFactory(cfgFor func(streamID string) Config, selector PathSelector, backend SegmentBackend, logger *logging.Logger, onError ErrorHandler) stream.RecorderFactory {
	return func(streamID string, frames <-chan stream.Frame) (stream.Recorder, error) {
		cfg := DefaultConfig()
		if cfgFor != nil {
			cfg = cfgFor(streamID)
		}
		return NewBranch(streamID, cfg, selector, backend, frames, logger, onError), nil
	}
}

// Start transitions NotRecording -> Recording at the next incoming
// buffer. Fails if already recording.
func (b *Branch) Start() error {
	return b.dispatch(b.doStart)
}

// Stop forces an immediate split of the current segment and
// transitions to NotRecording. Fails if not recording.
func (b *Branch) Stop() error {
	return b.dispatch(b.doStop)
}

// IsRecording reports the current toggle state.
func (b *Branch) IsRecording() bool {
	return atomic.LoadInt32(&b.recording) == 1
}

// ResetSegmentCounter resets the monotonic fragment index. Fails while recording.
func (b *Branch) ResetSegmentCounter() error {
	return b.dispatch(b.doReset)
}

// BeginMigration implements stream.Migratable: it finalizes the
// current segment and, from that point on, redirects arriving frame
// bytes into buffer instead of the segment writer, so nothing arriving
// during the relocation gap is dropped. Recording must already be
// active.
func (b *Branch) BeginMigration(buffer func([]byte) error) error {
	return b.dispatch(func() error {
		if !b.gate.isRecording() {
			return apperrors.Recording("recording.branch.begin_migration", apperrors.RecordingNotRecording, "not recording", nil)
		}
		b.writer.finalizeSync()
		b.migrating = true
		b.migrateBuf = buffer
		return nil
	})
}

// EndMigration implements stream.Migratable: it stops redirecting
// frame bytes and, when drained is non-empty, opens a fresh segment
// (the path selector is expected to already be steering new opens to
// the migration target) and writes drained into it ahead of any newly
// arriving frame; with nothing drained, the next keyframe opens the
// segment. Normal delivery then resumes.
func (b *Branch) EndMigration(ctx context.Context, drained [][]byte) error {
	return b.dispatch(func() error {
		b.migrating = false
		b.migrateBuf = nil
		for _, chunk := range drained {
			if b.writer.current == nil {
				if err := b.writer.open(ctx, time.Now()); err != nil {
					return err
				}
			}
			if err := b.writer.write(chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

// CurrentSegmentID and CurrentLocation report the in-progress segment,
// or "" if none is open.
func (b *Branch) CurrentSegmentID() string {
	id, _ := b.writer.currentInfo()
	return id
}

func (b *Branch) CurrentLocation() string {
	_, loc := b.writer.currentInfo()
	return loc
}

// Close releases the branch's goroutine and waits for any in-flight
// async finalization. Invoked by the owner (stream.Manager) on removal.
func (b *Branch) Close() {
	b.cancel()
	<-b.done
	b.writer.wait()
}

func (b *Branch) dispatch(fn func() error) error {
	done := make(chan error, 1)
	select {
	case b.ctrl <- ctrlMsg{fn: fn, done: done}:
	case <-b.done:
		return apperrors.Recording("recording.branch.dispatch", apperrors.RecordingNotRecording, "branch is shut down", nil)
	}
	select {
	case err := <-done:
		return err
	case <-b.done:
		return apperrors.Recording("recording.branch.dispatch", apperrors.RecordingNotRecording, "branch is shut down", nil)
	}
}

func (b *Branch) doStart() error {
	if b.gate.isRecording() {
		return apperrors.Recording("recording.branch.start", apperrors.RecordingAlreadyRecording, "already recording", nil)
	}
	b.gate.setRecording(true)
	atomic.StoreInt32(&b.recording, 1)
	return nil
}

func (b *Branch) doStop() error {
	if !b.gate.isRecording() {
		return apperrors.Recording("recording.branch.stop", apperrors.RecordingNotRecording, "not recording", nil)
	}
	// Forced split lands before the gate closes, so the gate
	// off-transition happens strictly after the split marker.
	b.writer.finalizeAsync()
	b.gate.setRecording(false)
	atomic.StoreInt32(&b.recording, 0)
	return nil
}

func (b *Branch) doReset() error {
	if b.gate.isRecording() {
		return apperrors.Recording("recording.branch.reset", apperrors.RecordingInvalidConfig, "cannot reset segment counter while recording", nil)
	}
	b.writer.resetCounter()
	return nil
}

func (b *Branch) run() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			b.writer.finalizeSync()
			return
		case msg := <-b.ctrl:
			msg.done <- msg.fn()
		case f, ok := <-b.frames:
			if !ok {
				b.writer.finalizeSync()
				return
			}
			b.handleFrame(f)
		}
	}
}

func (b *Branch) handleFrame(f stream.Frame) {
	if !b.gate.admit(f) {
		return
	}

	if b.migrating {
		if b.migrateBuf != nil {
			if err := b.migrateBuf(f.Data); err != nil {
				b.fail(err)
			}
		}
		return
	}

	if b.writer.current == nil {
		if !f.IsKeyframe {
			return
		}
		if err := b.writer.open(b.ctx, f.PTS); err != nil {
			b.fail(err)
			return
		}
	}

	if b.writer.shouldRequestKeyframe(f.PTS) && b.logger != nil {
		b.writer.current.keyframeRequested = true
		b.logger.WithField("stream_id", b.streamID).Debug("approaching segment split, requesting keyframe")
	}

	if b.writer.shouldSplit(f.PTS, f.IsKeyframe) {
		if err := b.writer.split(b.ctx, f.PTS); err != nil {
			b.fail(err)
			return
		}
	}

	if err := b.writer.write(f.Data); err != nil {
		b.fail(err)
	}
}

// fail surfaces a terminal write/open error to the owning stream
// manager and drives the branch to NotRecording without retrying the
// same path; a fresh start() re-resolves via the path selector.
func (b *Branch) fail(err error) {
	b.writer.finalizeSync()
	b.gate.setRecording(false)
	atomic.StoreInt32(&b.recording, 0)
	b.migrating = false
	b.migrateBuf = nil
	if b.onError != nil {
		b.onError(b.streamID, err)
	}
	if b.logger != nil {
		b.logger.WithField("stream_id", b.streamID).WithError(err).Warn("recording branch failed, stopped")
	}
}
