package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientSpace(t *testing.T) {
	err := InsufficientSpace("storage.select_path", 1<<30, 512<<20)
	require.Error(t, err)
	assert.Equal(t, KindStorageError, err.Kind)
	assert.Equal(t, string(StorageInsufficientSpace), err.SubKind)
	assert.Equal(t, int64(1<<30), err.Need)
	assert.Equal(t, int64(512<<20), err.Available)
	assert.Equal(t, StatusServiceUnavailable, err.Status)
}

func TestErrorIs(t *testing.T) {
	a := Recording("recording.start", RecordingAlreadyRecording, "already recording", nil)
	b := Recording("recording.start", RecordingAlreadyRecording, "different message", nil)
	c := Recording("recording.stop", RecordingNotRecording, "not recording", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Storage("storage.write", StorageIO, "write failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestHas(t *testing.T) {
	wrapped := Rotation("rotation.trigger", RotationInProgress, "busy", nil)
	assert.True(t, Has(wrapped, KindRotationError, string(RotationInProgress)))
	assert.False(t, Has(wrapped, KindRotationError, string(RotationNoAlternativeDisk)))
	assert.False(t, Has(wrapped, KindStorageError, ""))
}
