package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// snapshotDir returns the directory snapshots for configPath are kept
// in: <config_dir>/snapshots/.
func snapshotDir(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "snapshots")
}

// WriteSnapshot persists cfg as config_snapshot_YYYYMMDD_HHMMSS.toml
// under <config_dir>/snapshots/, creating the directory if needed, and
// returns the written path. The timestamped name means lexical sort
// order is chronological, which ListSnapshots relies on.
func WriteSnapshot(cfg *Config, configPath string, at time.Time) (string, error) {
	dir := snapshotDir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := fmt.Sprintf("config_snapshot_%s.toml", at.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal configuration snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write configuration snapshot: %w", err)
	}
	return path, nil
}

// ListSnapshots returns every snapshot file under <config_dir>/snapshots/,
// newest first.
func ListSnapshots(configPath string) ([]string, error) {
	dir := snapshotDir(configPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, filepath.Join(dir, e.Name()))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}
