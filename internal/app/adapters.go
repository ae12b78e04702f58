package app

import (
	"context"

	"github.com/streamvault/streamvault-go/internal/storage"
	"github.com/streamvault/streamvault-go/internal/stream"
)

// pathSelectorAdapter bridges storage.Selector to recording.PathSelector,
// the seam the recording package declares locally to avoid a
// recording<->storage import cycle. While rotation is Preparing or
// Migrating, every new segment targets the migration's destination
// disk directly rather than re-running the selection strategy, so a
// segment opened mid-migration never lands on the disk being
// evacuated; once rotation settles back to Idle, selection falls
// through to the (now-updated) active disk.
type pathSelectorAdapter struct {
	selector *storage.Selector
	strategy storage.Strategy
	rotation *storage.Manager
}

// SelectPath implements recording.PathSelector.
func (a *pathSelectorAdapter) SelectPath(streamID string, sizeHint int64) (string, error) {
	if a.rotation != nil {
		switch state := a.rotation.State(); state.Phase {
		case storage.RotationPreparing, storage.RotationMigrating:
			return state.To, nil
		}
		if active := a.rotation.ActiveDisk(); active != "" {
			return active, nil
		}
	}
	snap, err := a.selector.Select(streamID, a.strategy, sizeHint)
	if err != nil {
		return "", err
	}
	return snap.Root, nil
}

// relocatorAdapter bridges stream.Manager to storage.SegmentRelocator.
// segment_writer.go re-resolves PathSelector.SelectPath fresh on every
// open(), and pathSelectorAdapter already steers fresh opens to the
// migration target while one is in flight, so relocation only needs
// to cover the gap between the old segment closing and the new one
// opening: frames arriving in that gap are redirected into
// storage.Manager's write buffer (BufferWrite) via the branch's
// stream.Migratable hooks, then drained (TakeBuffered) into the newly
// opened segment before normal delivery resumes.
type relocatorAdapter struct {
	streams  *stream.Manager
	rotation *storage.Manager
}

// StreamIDs implements storage.SegmentRelocator.
func (r *relocatorAdapter) StreamIDs() []string {
	var ids []string
	for _, id := range r.streams.List() {
		st, err := r.streams.Get(id)
		if err != nil || st.Recorder == nil {
			continue
		}
		if st.Recorder.IsRecording() {
			ids = append(ids, id)
		}
	}
	return ids
}

// RelocateSegment implements storage.SegmentRelocator. For a recorder
// that supports stream.Migratable, frames arriving between the old
// segment closing and the new one opening are buffered through
// storage.Manager rather than dropped; recorders that don't implement
// it (none in production, but any test double might not) fall back to
// a plain stop/start, accepting the frame-loss gap that implies.
func (r *relocatorAdapter) RelocateSegment(ctx context.Context, streamID, newRoot string) error {
	st, err := r.streams.Get(streamID)
	if err != nil {
		return err
	}
	if st.Recorder == nil {
		return nil
	}

	migrator, ok := st.Recorder.(stream.Migratable)
	if !ok {
		if err := st.Recorder.Stop(); err != nil {
			return err
		}
		return st.Recorder.Start()
	}

	if err := migrator.BeginMigration(func(data []byte) error {
		return r.rotation.BufferWrite(streamID, data)
	}); err != nil {
		return err
	}
	drained := r.rotation.TakeBuffered(streamID)
	return migrator.EndMigration(ctx, drained)
}
