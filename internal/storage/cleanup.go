package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// segmentFile is a single file discovered during a cleanup scan.
type segmentFile struct {
	path     string
	streamID string
	modTime  time.Time
	size     int64
}

// streamIDFromName extracts the leading stream id from a segment
// filename of the form "<streamID>-<timestamp>-<fragment>.<ext>". A
// name with no '-' is its own group; the recording branch's default
// names ("<timestamp>_<fragment>.<ext>") carry no stream id and no '-',
// so each such file is grouped on its own.
func streamIDFromName(name string) string {
	if idx := strings.Index(name, "-"); idx > 0 {
		return name[:idx]
	}
	return name
}

// CleanupAll runs Cleanup over every registered path, for the periodic
// retention sweep. A no-op when cleanup is disabled.
func (s *Selector) CleanupAll() (removed int, freedBytes int64) {
	if !s.cleanup.Enabled {
		return 0, 0
	}
	s.mu.RLock()
	paths := append([]*Path(nil), s.paths...)
	s.mu.RUnlock()

	for _, p := range paths {
		n, bytes, err := s.Cleanup(p)
		if err != nil {
			if s.logger != nil {
				s.logger.WithField("path", p.Name).WithError(err).Warn("storage cleanup failed")
			}
			continue
		}
		removed += n
		freedBytes += bytes
	}
	return removed, freedBytes
}

// Cleanup scans a path's root and removes files older than the
// configured max age, preserving at least MinSegmentsPerStream most
// recent segments per stream (with per-stream overrides), once the
// path's used bytes exceed MaxSizeGB or its used fraction exceeds
// MaxUsedFraction. Returns the count and total bytes removed.
func (s *Selector) Cleanup(p *Path) (int, int64, error) {
	if !s.cleanup.Enabled {
		return 0, 0, nil
	}

	snap := p.snapshot()
	if snap.BytesTotal > 0 {
		usedFraction := float64(snap.BytesUsed) / float64(snap.BytesTotal)
		sizeLimitBytes := int64(s.cleanup.MaxSizeGB * (1 << 30))
		overSize := sizeLimitBytes > 0 && snap.BytesUsed > sizeLimitBytes
		overFraction := usedFraction > s.cleanup.MaxUsedFraction
		if !overSize && !overFraction {
			return 0, 0, nil
		}
	}

	if s.events != nil {
		s.events.Publish(Event{Kind: EventCleanupStarted, Path: p.Name})
	}

	files, err := scanSegments(p.Root)
	if err != nil {
		return 0, 0, err
	}

	byStream := make(map[string][]segmentFile)
	for _, f := range files {
		byStream[f.streamID] = append(byStream[f.streamID], f)
	}

	var removedCount int
	var removedBytes int64

	for streamID, group := range byStream {
		sort.Slice(group, func(i, j int) bool {
			return group[i].modTime.After(group[j].modTime)
		})

		keep := s.cleanup.MinSegmentsPerStream
		maxAge := s.cleanup.MaxAge
		if override, ok := s.cleanup.PerStreamRetention[streamID]; ok {
			maxAge = override
		}
		cutoff := time.Now().Add(-maxAge)

		for i, f := range group {
			if i < keep {
				continue // always keep the most recent `keep` segments
			}
			if f.modTime.After(cutoff) {
				continue
			}
			if err := os.Remove(f.path); err == nil {
				removedCount++
				removedBytes += f.size
			}
		}
	}

	if s.events != nil {
		s.events.Publish(Event{
			Kind: EventCleanupCompleted,
			Path: p.Name,
			Data: map[string]interface{}{"count": removedCount, "bytes": removedBytes},
		})
	}
	return removedCount, removedBytes, nil
}

func scanSegments(root string) ([]segmentFile, error) {
	var out []segmentFile
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the whole scan
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".mp4" && ext != ".mkv" {
			return nil
		}
		out = append(out, segmentFile{
			path:     path,
			streamID: streamIDFromName(filepath.Base(path)),
			modTime:  info.ModTime(),
			size:     info.Size(),
		})
		return nil
	})
	return out, err
}
