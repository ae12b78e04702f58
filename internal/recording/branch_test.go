package recording

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/streamvault-go/internal/apperrors"
	"github.com/streamvault/streamvault-go/internal/stream"
)

type fakeHandle struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
	writeErr error
}

func (h *fakeHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return 0, h.writeErr
	}
	cp := append([]byte(nil), p...)
	h.writes = append(h.writes, cp)
	return len(p), nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

type fakeBackend struct {
	mu      sync.Mutex
	opened  []string
	openErr error
	handles []*fakeHandle
}

func (b *fakeBackend) Open(ctx context.Context, path string, muxer Muxer) (SegmentHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opened = append(b.opened, path)
	h := &fakeHandle{}
	b.handles = append(b.handles, h)
	return h, nil
}

type fakeSelector struct {
	root string
	err  error
}

func (s *fakeSelector) SelectPath(streamID string, sizeHint int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.root, nil
}

func testConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.BaseDir = dir
	cfg.SegmentMaxDuration = 50 * time.Millisecond
	return cfg
}

func TestBranchStartRequiresKeyframeToOpenSegment(t *testing.T) {
	frames := make(chan stream.Frame, 8)
	backend := &fakeBackend{}
	selector := &fakeSelector{root: t.TempDir()}
	b := NewBranch("cam1", testConfig(""), selector, backend, frames, nil, nil)
	defer b.Close()

	require.NoError(t, b.Start())

	frames <- stream.Frame{Data: []byte("a"), PTS: time.Now(), IsKeyframe: false}
	time.Sleep(10 * time.Millisecond)
	backend.mu.Lock()
	assert.Empty(t, backend.opened)
	backend.mu.Unlock()

	frames <- stream.Frame{Data: []byte("b"), PTS: time.Now(), IsKeyframe: true}
	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.opened) == 1
	}, time.Second, time.Millisecond)
}

func TestBranchStartTwiceFails(t *testing.T) {
	frames := make(chan stream.Frame, 8)
	b := NewBranch("cam1", testConfig(""), &fakeSelector{root: t.TempDir()}, &fakeBackend{}, frames, nil, nil)
	defer b.Close()

	require.NoError(t, b.Start())
	err := b.Start()
	require.Error(t, err)
	assert.True(t, apperrors.Has(err, apperrors.KindRecordingError, string(apperrors.RecordingAlreadyRecording)))
}

func TestBranchStopWithoutStartFails(t *testing.T) {
	frames := make(chan stream.Frame, 8)
	b := NewBranch("cam1", testConfig(""), &fakeSelector{root: t.TempDir()}, &fakeBackend{}, frames, nil, nil)
	defer b.Close()

	err := b.Stop()
	require.Error(t, err)
	assert.True(t, apperrors.Has(err, apperrors.KindRecordingError, string(apperrors.RecordingNotRecording)))
}

func TestBranchSplitsAtMaxDurationOnKeyframe(t *testing.T) {
	frames := make(chan stream.Frame, 8)
	backend := &fakeBackend{}
	b := NewBranch("cam1", testConfig(""), &fakeSelector{root: t.TempDir()}, backend, frames, nil, nil)
	defer b.Close()

	require.NoError(t, b.Start())
	base := time.Now()
	frames <- stream.Frame{Data: []byte("k1"), PTS: base, IsKeyframe: true}
	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.opened) == 1
	}, time.Second, time.Millisecond)

	// Non-keyframe after max duration must NOT split.
	frames <- stream.Frame{Data: []byte("p"), PTS: base.Add(100 * time.Millisecond), IsKeyframe: false}
	time.Sleep(10 * time.Millisecond)
	backend.mu.Lock()
	assert.Len(t, backend.opened, 1)
	backend.mu.Unlock()

	// Keyframe after max duration must split into a second segment.
	frames <- stream.Frame{Data: []byte("k2"), PTS: base.Add(200 * time.Millisecond), IsKeyframe: true}
	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.opened) == 2
	}, time.Second, time.Millisecond)
}

func TestBranchStopFinalizesCurrentSegment(t *testing.T) {
	frames := make(chan stream.Frame, 8)
	backend := &fakeBackend{}
	b := NewBranch("cam1", testConfig(""), &fakeSelector{root: t.TempDir()}, backend, frames, nil, nil)
	defer b.Close()

	require.NoError(t, b.Start())
	frames <- stream.Frame{Data: []byte("k1"), PTS: time.Now(), IsKeyframe: true}
	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.opened) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, b.Stop())
	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.handles) == 1 && backend.handles[0].closed
	}, time.Second, time.Millisecond)
	assert.False(t, b.IsRecording())
}

func TestBranchWriteFailureStopsRecordingWithoutRetry(t *testing.T) {
	frames := make(chan stream.Frame, 8)
	backend := &fakeBackend{}
	var errMu sync.Mutex
	var gotErr error
	onError := func(streamID string, err error) {
		errMu.Lock()
		gotErr = err
		errMu.Unlock()
	}
	b := NewBranch("cam1", testConfig(""), &fakeSelector{root: t.TempDir()}, backend, frames, nil, onError)
	defer b.Close()

	require.NoError(t, b.Start())
	frames <- stream.Frame{Data: []byte("k1"), PTS: time.Now(), IsKeyframe: true}
	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.handles) == 1
	}, time.Second, time.Millisecond)

	backend.mu.Lock()
	backend.handles[0].writeErr = assertErr{}
	backend.mu.Unlock()

	frames <- stream.Frame{Data: []byte("bad"), PTS: time.Now(), IsKeyframe: false}

	require.Eventually(t, func() bool { return !b.IsRecording() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return gotErr != nil
	}, time.Second, time.Millisecond)
	errMu.Lock()
	assert.True(t, apperrors.Has(gotErr, apperrors.KindRecordingError, string(apperrors.RecordingIO)))
	errMu.Unlock()
}

func TestBranchResetCounterFailsWhileRecording(t *testing.T) {
	frames := make(chan stream.Frame, 8)
	b := NewBranch("cam1", testConfig(""), &fakeSelector{root: t.TempDir()}, &fakeBackend{}, frames, nil, nil)
	defer b.Close()

	require.NoError(t, b.Start())
	err := b.ResetSegmentCounter()
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "write failed" }
