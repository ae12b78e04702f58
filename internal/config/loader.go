package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Loader handles configuration loading using Viper.
type Loader struct {
	viper  *viper.Viper
	logger *logrus.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STREAMVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{viper: v, logger: logrus.New()}
}

// Load loads configuration from the given file path, applying defaults
// for anything the file or environment does not set, then validates it.
func (l *Loader) Load(configPath string) (*Config, error) {
	l.viper.SetConfigFile(configPath)
	l.setDefaults()

	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			l.logger.Warn("configuration file not found, using defaults")
		} else if os.IsNotExist(err) {
			l.logger.Warn("configuration file not found, using defaults")
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	l.logger.Info("configuration loaded successfully")
	return &cfg, nil
}

// GetViper returns the underlying Viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.viper
}

func (l *Loader) setDefaults() {
	l.viper.SetDefault("app.name", "streamvault")
	l.viper.SetDefault("app.environment", "development")

	l.viper.SetDefault("api.host", "0.0.0.0")
	l.viper.SetDefault("api.port", 8002)
	l.viper.SetDefault("api.websocket_path", "/ws")
	l.viper.SetDefault("api.auth_enabled", true)
	l.viper.SetDefault("api.jwt_expiry", 24*time.Hour)
	l.viper.SetDefault("api.max_connections", 200)
	l.viper.SetDefault("api.read_timeout", 10*time.Second)
	l.viper.SetDefault("api.write_timeout", 10*time.Second)

	l.viper.SetDefault("server.host", "0.0.0.0")
	l.viper.SetDefault("server.port", 8080)
	l.viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	l.viper.SetDefault("server.read_timeout", 5*time.Second)
	l.viper.SetDefault("server.write_timeout", 5*time.Second)

	l.viper.SetDefault("storage.probe_interval", 30*time.Second)
	l.viper.SetDefault("storage.cleanup.enabled", true)
	l.viper.SetDefault("storage.cleanup.max_size_gb", 500)
	l.viper.SetDefault("storage.cleanup.max_age_days", 14)
	l.viper.SetDefault("storage.cleanup.min_segments_per_stream", 3)
	l.viper.SetDefault("storage.cleanup.interval", time.Hour)
	l.viper.SetDefault("storage.rotation.mount_roots", []string{"/media", "/mnt", "/run/media"})
	l.viper.SetDefault("storage.rotation.min_free_bytes", int64(1<<30))
	l.viper.SetDefault("storage.rotation.buffer_cap_bytes", int64(256<<20))
	l.viper.SetDefault("storage.rotation.auto_rotate", true)
	l.viper.SetDefault("storage.rotation.migration_timeout", 30*time.Second)
	l.viper.SetDefault("storage.rotation.poll_interval", 5*time.Second)

	l.viper.SetDefault("recording.file_name_pattern", "%Y%m%d_%H%M%S")
	l.viper.SetDefault("recording.segment_max_duration", 10*time.Minute)
	l.viper.SetDefault("recording.muxer", "mp4")
	l.viper.SetDefault("recording.send_keyframe_requests", true)
	l.viper.SetDefault("recording.ensure_no_gaps", true)
	l.viper.SetDefault("recording.queue_capacity", 256)
	l.viper.SetDefault("recording.min_threshold", 2*time.Second)
	l.viper.SetDefault("recording.ffmpeg_binary", "ffmpeg")

	l.viper.SetDefault("inference.enabled", false)
	l.viper.SetDefault("inference.max_concurrent", 1)

	l.viper.SetDefault("monitoring.check_interval", 5*time.Second)
	l.viper.SetDefault("monitoring.max_consecutive_failures", 5)
	l.viper.SetDefault("monitoring.frame_timeout", 10*time.Second)
	l.viper.SetDefault("monitoring.max_retries_unhealthy", 10)
	l.viper.SetDefault("monitoring.max_retries_degraded", 3)
	l.viper.SetDefault("monitoring.min_buffering_percent", 20.0)
	l.viper.SetDefault("monitoring.auto_remove_failed", false)
	l.viper.SetDefault("monitoring.removal_grace_period", 5*time.Minute)

	l.viper.SetDefault("stream_defaults.reconnect_timeout", 5*time.Second)
	l.viper.SetDefault("stream_defaults.restart_timeout", 2*time.Second)
	l.viper.SetDefault("stream_defaults.retry_timeout", time.Second)
	l.viper.SetDefault("stream_defaults.frame_timeout", 10*time.Second)
	l.viper.SetDefault("stream_defaults.buffer_size_hint", 64)

	l.viper.SetDefault("logging.level", "info")
	l.viper.SetDefault("logging.format", "json")
	l.viper.SetDefault("logging.file_enabled", true)
	l.viper.SetDefault("logging.file_path", "/var/log/streamvault/service.log")
	l.viper.SetDefault("logging.max_file_size_mb", 10)
	l.viper.SetDefault("logging.backup_count", 5)
	l.viper.SetDefault("logging.console_enabled", true)
}
