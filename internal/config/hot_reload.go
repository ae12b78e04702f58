package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ReloadDiff describes what changed between two loaded configurations.
// Fields that bind a listener (ports, bind addresses) cannot be applied
// to a running process and are reported separately so the caller can
// decide whether to restart.
type ReloadDiff struct {
	Changed         []string
	RestartRequired []string
}

// HasChanges reports whether anything changed at all.
func (d ReloadDiff) HasChanges() bool {
	return len(d.Changed) > 0 || len(d.RestartRequired) > 0
}

// NeedsRestart reports whether any changed field cannot be applied live.
func (d ReloadDiff) NeedsRestart() bool {
	return len(d.RestartRequired) > 0
}

// diffConfigs compares the listen-surface fields that require a process
// restart against everything else, which is assumed runtime-applicable
// by whatever component owns that section.
func diffConfigs(oldCfg, newCfg *Config) ReloadDiff {
	var d ReloadDiff

	restart := func(name string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	runtime := func(name string, changed bool) {
		if changed {
			d.Changed = append(d.Changed, name)
		}
	}

	restart("api.host", oldCfg.API.Host != newCfg.API.Host)
	restart("api.port", oldCfg.API.Port != newCfg.API.Port)
	restart("server.host", oldCfg.Server.Host != newCfg.Server.Host)
	restart("server.port", oldCfg.Server.Port != newCfg.Server.Port)
	if oldCfg.RTSP != nil && newCfg.RTSP != nil {
		restart("rtsp.listen_port", oldCfg.RTSP.ListenPort != newCfg.RTSP.ListenPort)
	} else if (oldCfg.RTSP == nil) != (newCfg.RTSP == nil) {
		d.RestartRequired = append(d.RestartRequired, "rtsp")
	}

	runtime("api.auth_enabled", oldCfg.API.AuthEnabled != newCfg.API.AuthEnabled)
	runtime("api.jwt_secret_key", oldCfg.API.JWTSecretKey != newCfg.API.JWTSecretKey)
	runtime("api.jwt_expiry", oldCfg.API.JWTExpiry != newCfg.API.JWTExpiry)
	runtime("api.max_connections", oldCfg.API.MaxConnections != newCfg.API.MaxConnections)

	runtime("storage.cleanup", !cleanupEqual(oldCfg.Storage.Cleanup, newCfg.Storage.Cleanup))
	runtime("storage.rotation.auto_rotate", oldCfg.Storage.Rotation.AutoRotate != newCfg.Storage.Rotation.AutoRotate)
	runtime("storage.rotation.min_free_bytes", oldCfg.Storage.Rotation.MinFreeBytes != newCfg.Storage.Rotation.MinFreeBytes)
	runtime("storage.rotation.buffer_cap_bytes", oldCfg.Storage.Rotation.BufferCapBytes != newCfg.Storage.Rotation.BufferCapBytes)

	runtime("recording.segment_max_duration", oldCfg.Recording.SegmentMaxDuration != newCfg.Recording.SegmentMaxDuration)
	runtime("recording.muxer", oldCfg.Recording.Muxer != newCfg.Recording.Muxer)
	runtime("recording.send_keyframe_requests", oldCfg.Recording.SendKeyframeRequests != newCfg.Recording.SendKeyframeRequests)

	runtime("monitoring.check_interval", oldCfg.Monitoring.CheckInterval != newCfg.Monitoring.CheckInterval)
	runtime("monitoring.max_consecutive_failures", oldCfg.Monitoring.MaxConsecutiveFailures != newCfg.Monitoring.MaxConsecutiveFailures)
	runtime("monitoring.auto_remove_failed", oldCfg.Monitoring.AutoRemoveFailed != newCfg.Monitoring.AutoRemoveFailed)

	runtime("logging.level", oldCfg.Logging.Level != newCfg.Logging.Level)

	if len(oldCfg.Streams) != len(newCfg.Streams) {
		runtime("streams", true)
	} else {
		for i := range oldCfg.Streams {
			if !streamConfigEqual(oldCfg.Streams[i], newCfg.Streams[i]) {
				runtime(fmt.Sprintf("streams[%d]", i), true)
			}
		}
	}

	return d
}

func cleanupEqual(a, b CleanupConfig) bool {
	if a.Enabled != b.Enabled || a.MaxSizeGB != b.MaxSizeGB || a.MaxAgeDays != b.MaxAgeDays ||
		a.MinSegmentsPerStream != b.MinSegmentsPerStream || a.Interval != b.Interval {
		return false
	}
	if len(a.PerStreamRetention) != len(b.PerStreamRetention) {
		return false
	}
	for k, v := range a.PerStreamRetention {
		if b.PerStreamRetention[k] != v {
			return false
		}
	}
	return true
}

func streamConfigEqual(a, b StreamConfig) bool {
	if a.ID != b.ID || a.URI != b.URI || a.Enabled != b.Enabled ||
		a.RecordingEnabled != b.RecordingEnabled || a.InferenceEnabled != b.InferenceEnabled {
		return false
	}
	if len(a.RepublishTargets) != len(b.RepublishTargets) {
		return false
	}
	for i := range a.RepublishTargets {
		if a.RepublishTargets[i] != b.RepublishTargets[i] {
			return false
		}
	}
	return true
}

// ConfigWatcher handles hot reload functionality for configuration files.
type ConfigWatcher struct {
	watcher        *fsnotify.Watcher
	configPath     string
	current        *Config
	reloadCallback func(*Config, ReloadDiff) error
	logger         *logrus.Logger
	mu             sync.RWMutex
	isRunning      bool
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewConfigWatcher creates a new configuration watcher. initial is the
// configuration already in effect, used as the baseline for the first
// diff computed on reload.
func NewConfigWatcher(configPath string, initial *Config, reloadCallback func(*Config, ReloadDiff) error) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ConfigWatcher{
		watcher:        watcher,
		configPath:     configPath,
		current:        initial,
		reloadCallback: reloadCallback,
		logger:         logrus.New(),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Start begins watching the configuration file for changes.
func (cw *ConfigWatcher) Start() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.isRunning {
		return fmt.Errorf("config watcher is already running")
	}

	if _, err := os.Stat(cw.configPath); os.IsNotExist(err) {
		return fmt.Errorf("configuration file does not exist: %s", cw.configPath)
	}

	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", configDir, err)
	}

	cw.isRunning = true
	cw.logger.Info("configuration hot reload started")

	go cw.watchLoop()

	return nil
}

// Stop stops watching the configuration file.
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.isRunning {
		return nil
	}

	cw.cancel()
	cw.isRunning = false

	if err := cw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}

	cw.logger.Info("configuration hot reload stopped")
	return nil
}

// IsRunning returns whether the watcher is currently running.
func (cw *ConfigWatcher) IsRunning() bool {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.isRunning
}

// watchLoop handles the file system events.
func (cw *ConfigWatcher) watchLoop() {
	var lastReloadTime time.Time
	debounceInterval := 500 * time.Millisecond

	for {
		select {
		case <-cw.ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(cw.configPath) {
				continue
			}

			if time.Since(lastReloadTime) < debounceInterval {
				cw.logger.Debug("ignoring rapid configuration file change (debounced)")
				continue
			}

			switch event.Op {
			case fsnotify.Write, fsnotify.Create:
				cw.logger.Info("configuration file changed, reloading")
				if err := cw.reloadConfig(); err != nil {
					cw.logger.Errorf("failed to reload configuration: %v", err)
				} else {
					lastReloadTime = time.Now()
				}

			case fsnotify.Remove:
				cw.logger.Warn("configuration file removed, continuing to watch")

			case fsnotify.Rename:
				cw.logger.Info("configuration file renamed, continuing to watch")
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Errorf("file watcher error: %v", err)
		}
	}
}

// reloadConfig reloads the configuration file, diffs it against the
// configuration currently in effect, and invokes the reload callback.
func (cw *ConfigWatcher) reloadConfig() error {
	if err := cw.waitForFileStable(); err != nil {
		return fmt.Errorf("failed to wait for file stability: %w", err)
	}

	loader := NewLoader()
	newCfg, err := loader.Load(cw.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cw.mu.Lock()
	diff := diffConfigs(cw.current, newCfg)
	cw.current = newCfg
	cw.mu.Unlock()

	if !diff.HasChanges() {
		cw.logger.Debug("configuration reloaded, no effective change")
		return nil
	}

	if diff.NeedsRestart() {
		cw.logger.Warnf("configuration fields require a process restart to take effect: %v", diff.RestartRequired)
	}

	if cw.reloadCallback != nil {
		if err := cw.reloadCallback(newCfg, diff); err != nil {
			return fmt.Errorf("reload callback failed: %w", err)
		}
	}

	if path, err := WriteSnapshot(newCfg, cw.configPath, time.Now()); err != nil {
		cw.logger.Warnf("failed to write configuration snapshot: %v", err)
	} else {
		cw.logger.WithField("path", path).Info("configuration snapshot written")
	}

	cw.logger.Info("configuration reloaded successfully")
	return nil
}

// waitForFileStable waits for the configuration file to be stable (no size changes).
func (cw *ConfigWatcher) waitForFileStable() error {
	const (
		maxWaitTime    = 5 * time.Second
		checkInterval  = 100 * time.Millisecond
		stabilityCount = 3
	)

	startTime := time.Now()
	lastSize := int64(-1)
	stableChecks := 0

	for time.Since(startTime) < maxWaitTime {
		stat, err := os.Stat(cw.configPath)
		if err != nil {
			if os.IsNotExist(err) {
				time.Sleep(checkInterval)
				continue
			}
			return fmt.Errorf("failed to stat configuration file: %w", err)
		}

		currentSize := stat.Size()
		if currentSize == lastSize {
			stableChecks++
			if stableChecks >= stabilityCount {
				return nil
			}
		} else {
			stableChecks = 0
			lastSize = currentSize
		}

		time.Sleep(checkInterval)
	}

	return fmt.Errorf("configuration file did not stabilize within %v", maxWaitTime)
}

// GetWatcher returns the underlying fsnotify watcher for advanced use cases.
func (cw *ConfigWatcher) GetWatcher() *fsnotify.Watcher {
	return cw.watcher
}
