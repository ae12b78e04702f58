package recording

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamvault/streamvault-go/internal/apperrors"
	"github.com/streamvault/streamvault-go/internal/logging"
)

type activeSegment struct {
	id                string
	index             int
	path              string
	start             time.Time
	handle            SegmentHandle
	keyframeRequested bool
}

// segmentWriter stands in for splitmuxsink: it owns the currently open
// segment, decides split points (on the first keyframe once the
// segment has reached the configured maximum duration), and finalizes
// outgoing segments off the live path.
type segmentWriter struct {
	streamID string
	cfg      Config
	selector PathSelector
	backend  SegmentBackend
	logger   *logging.Logger

	fragIndex int
	current   *activeSegment

	infoMu  sync.RWMutex
	infoID  string
	infoLoc string

	finalizeWG sync.WaitGroup
}

func newSegmentWriter(streamID string, cfg Config, selector PathSelector, backend SegmentBackend, logger *logging.Logger) *segmentWriter {
	return &segmentWriter{streamID: streamID, cfg: cfg, selector: selector, backend: backend, logger: logger}
}

func (w *segmentWriter) currentInfo() (id, location string) {
	w.infoMu.RLock()
	defer w.infoMu.RUnlock()
	return w.infoID, w.infoLoc
}

func (w *segmentWriter) setInfo(id, location string) {
	w.infoMu.Lock()
	w.infoID = id
	w.infoLoc = location
	w.infoMu.Unlock()
}

// open resolves a path via the selector and starts a new segment.
func (w *segmentWriter) open(ctx context.Context, at time.Time) error {
	sizeHint := int64(0)
	root, err := w.selector.SelectPath(w.streamID, sizeHint)
	if err != nil {
		return err
	}

	w.fragIndex++
	path, err := renderPath(root, w.cfg.FileNamePattern, at, w.fragIndex, w.cfg.Muxer)
	if err != nil {
		return apperrors.Recording("recording.segment.open", apperrors.RecordingInvalidConfig, "render segment path", err)
	}

	handle, err := w.backend.Open(ctx, path, w.cfg.Muxer)
	if err != nil {
		return err
	}

	w.current = &activeSegment{id: uuid.New().String(), index: w.fragIndex, path: path, start: at, handle: handle}
	w.setInfo(w.current.id, w.current.path)
	return nil
}

// write feeds one frame's bytes to the current segment, returning an
// error the caller must treat as terminal for this segment.
func (w *segmentWriter) write(data []byte) error {
	if w.current == nil {
		return apperrors.Recording("recording.segment.write", apperrors.RecordingIO, "no open segment", nil)
	}
	if _, err := w.current.handle.Write(data); err != nil {
		return apperrors.Recording("recording.segment.write", apperrors.RecordingIO, "write segment data", err)
	}
	return nil
}

// shouldRequestKeyframe reports whether we are close enough to the
// split boundary that the encoder should be nudged for a keyframe,
// honoring the muxer overhead factor (~5%) so the real cut isn't cut
// early relative to the configured duration.
func (w *segmentWriter) shouldRequestKeyframe(now time.Time) bool {
	if w.current == nil || w.cfg.SegmentMaxDuration <= 0 || w.current.keyframeRequested {
		return false
	}
	approach := time.Duration(float64(w.cfg.SegmentMaxDuration) * 0.95)
	return now.Sub(w.current.start) >= approach
}

// shouldSplit reports whether the current frame is an eligible split
// point: a keyframe at or past the configured maximum duration.
func (w *segmentWriter) shouldSplit(now time.Time, isKeyframe bool) bool {
	if w.current == nil || w.cfg.SegmentMaxDuration <= 0 || !isKeyframe {
		return false
	}
	return now.Sub(w.current.start) >= w.cfg.SegmentMaxDuration
}

// split finalizes the current segment asynchronously and opens the
// next one immediately, so no frame between them is ever lost.
func (w *segmentWriter) split(ctx context.Context, at time.Time) error {
	w.finalizeAsync()
	return w.open(ctx, at)
}

// finalizeAsync closes out the current segment off the live path.
func (w *segmentWriter) finalizeAsync() {
	if w.current == nil {
		return
	}
	seg := w.current
	w.current = nil
	w.finalizeWG.Add(1)
	go func() {
		defer w.finalizeWG.Done()
		if err := seg.handle.Close(); err != nil && w.logger != nil {
			w.logger.WithField("stream_id", w.streamID).WithError(err).Warn("segment finalize failed")
		}
	}()
}

// finalizeSync closes out the current segment on the caller's
// goroutine, used when the source itself has gone away and there is
// nothing left to race against.
func (w *segmentWriter) finalizeSync() {
	if w.current == nil {
		return
	}
	seg := w.current
	w.current = nil
	if err := seg.handle.Close(); err != nil && w.logger != nil {
		w.logger.WithField("stream_id", w.streamID).WithError(err).Warn("segment finalize failed")
	}
}

func (w *segmentWriter) resetCounter() {
	w.fragIndex = 0
}

func (w *segmentWriter) wait() {
	w.finalizeWG.Wait()
}
