package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSegment(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("segment"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestCleanupKeepsMinSegmentsPerStream(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, "s1-000.mp4", 10*time.Hour)
	writeSegment(t, dir, "s1-001.mp4", 5*time.Hour)
	writeSegment(t, dir, "s1-002.mp4", 1*time.Hour)

	s := &Selector{cleanup: CleanupConfig{
		Enabled:              true,
		MaxAge:               2 * time.Hour,
		MinSegmentsPerStream: 2,
	}}
	p := &Path{Name: "a", Root: dir}
	p.setProbe(0, 100, 100, true) // force over-fraction so cleanup proceeds

	removed, _, err := s.Cleanup(p)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := scanSegments(dir)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestCleanupSkipsWhenUnderThreshold(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, "s1-000.mp4", 10*time.Hour)

	s := &Selector{cleanup: CleanupConfig{
		Enabled:              true,
		MaxSizeGB:            1000,
		MaxUsedFraction:       0.90,
		MaxAge:               time.Hour,
		MinSegmentsPerStream: 1,
	}}
	p := &Path{Name: "a", Root: dir}
	p.setProbe(900, 1000, 100, true) // 10% used, under both thresholds

	removed, bytes, err := s.Cleanup(p)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Equal(t, int64(0), bytes)
}

func TestCleanupPerStreamRetentionOverride(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, "s1-000.mp4", 48*time.Hour)
	writeSegment(t, dir, "s2-000.mp4", 48*time.Hour)

	s := &Selector{cleanup: CleanupConfig{
		Enabled:              true,
		MaxAge:               time.Hour,
		MinSegmentsPerStream: 0,
		PerStreamRetention:   map[string]time.Duration{"s1": 72 * time.Hour},
	}}
	p := &Path{Name: "a", Root: dir}
	p.setProbe(0, 100, 100, true)

	removed, _, err := s.Cleanup(p)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := scanSegments(dir)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "s1", remaining[0].streamID)
}

func TestStreamIDFromName(t *testing.T) {
	assert.Equal(t, "cam1", streamIDFromName("cam1-20260101-000.mp4"))
	assert.Equal(t, "noseparator.mp4", streamIDFromName("noseparator.mp4"))
}
