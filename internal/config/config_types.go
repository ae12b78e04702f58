package config

import "time"

// AppConfig identifies the running instance.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	InstanceID  string `mapstructure:"instance_id"`
}

// APIConfig configures the JSON-RPC/WebSocket control surface.
type APIConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path"`
	AuthEnabled    bool          `mapstructure:"auth_enabled"`
	JWTSecretKey   string        `mapstructure:"jwt_secret_key"`
	JWTExpiry      time.Duration `mapstructure:"jwt_expiry"`
	MaxConnections int           `mapstructure:"max_connections"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// ServerConfig configures the process-level HTTP health/lifecycle server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// HTTPHealthConfig configures internal/health's HTTPHealthServer. The
// timeouts are duration strings parsed with time.ParseDuration.
type HTTPHealthConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	ReadTimeout      string `mapstructure:"read_timeout"`
	WriteTimeout     string `mapstructure:"write_timeout"`
	IdleTimeout      string `mapstructure:"idle_timeout"`
	BasicEndpoint    string `mapstructure:"basic_endpoint"`
	DetailedEndpoint string `mapstructure:"detailed_endpoint"`
	ReadyEndpoint    string `mapstructure:"ready_endpoint"`
	LiveEndpoint     string `mapstructure:"live_endpoint"`
}

// StoragePathConfig is one entry in the storage selector's path set.
type StoragePathConfig struct {
	Name           string   `mapstructure:"name"`
	Root           string   `mapstructure:"root"`
	Enabled        bool     `mapstructure:"enabled"`
	Priority       int      `mapstructure:"priority"`
	MaxUsageGB     int64    `mapstructure:"max_usage_gb"`
	StreamAffinity []string `mapstructure:"stream_affinity"`
}

// CleanupConfig controls the storage selector's retention sweep.
type CleanupConfig struct {
	Enabled              bool           `mapstructure:"enabled"`
	MaxSizeGB            int64          `mapstructure:"max_size_gb"`
	MaxAgeDays           int            `mapstructure:"max_age_days"`
	MinSegmentsPerStream int            `mapstructure:"min_segments_per_stream"`
	Interval             time.Duration  `mapstructure:"interval"`
	PerStreamRetention   map[string]int `mapstructure:"per_stream_retention_days"`
}

// RotationConfig controls disk hot-swap behavior.
type RotationConfig struct {
	MountRoots       []string      `mapstructure:"mount_roots"`
	MinFreeBytes     int64         `mapstructure:"min_free_bytes"`
	BufferCapBytes   int64         `mapstructure:"buffer_cap_bytes"`
	AutoRotate       bool          `mapstructure:"auto_rotate"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
}

// StorageConfig is the top-level storage section.
type StorageConfig struct {
	Paths         []StoragePathConfig `mapstructure:"paths"`
	ProbeInterval time.Duration       `mapstructure:"probe_interval"`
	Cleanup       CleanupConfig       `mapstructure:"cleanup"`
	Rotation      RotationConfig      `mapstructure:"rotation"`
}

// DatabaseConfig is optional: most deployments run file-backed only.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RecordingConfig configures the per-stream recording branch defaults;
// individual streams may override via StreamConfig.
type RecordingConfig struct {
	BaseDir              string        `mapstructure:"base_dir"`
	FileNamePattern      string        `mapstructure:"file_name_pattern"`
	SegmentMaxDuration   time.Duration `mapstructure:"segment_max_duration"`
	Muxer                string        `mapstructure:"muxer"` // mp4, mkv
	IsLive               bool          `mapstructure:"is_live"`
	SendKeyframeRequests bool          `mapstructure:"send_keyframe_requests"`
	EnsureNoGaps         bool          `mapstructure:"ensure_no_gaps"`
	QueueCapacity        int           `mapstructure:"queue_capacity"`
	MinThreshold         time.Duration `mapstructure:"min_threshold"`
	FFmpegBinary         string        `mapstructure:"ffmpeg_binary"`
}

// InferenceConfig configures the (out-of-core) inference branch.
type InferenceConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Backend       string `mapstructure:"backend"`
	ModelPath     string `mapstructure:"model_path"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// MonitoringConfig configures the per-stream health monitor.
type MonitoringConfig struct {
	CheckInterval           time.Duration `mapstructure:"check_interval"`
	MaxConsecutiveFailures  int           `mapstructure:"max_consecutive_failures"`
	FrameTimeout            time.Duration `mapstructure:"frame_timeout"`
	MaxRetriesUnhealthy     int           `mapstructure:"max_retries_unhealthy"`
	MaxRetriesDegraded      int           `mapstructure:"max_retries_degraded"`
	MinBufferingPercent     float64       `mapstructure:"min_buffering_percent"`
	AutoRemoveFailed        bool          `mapstructure:"auto_remove_failed"`
	RemovalGracePeriod      time.Duration `mapstructure:"removal_grace_period"`
}

// StreamDefaultsConfig seeds per-stream Config fields that streams[]
// entries may override.
type StreamDefaultsConfig struct {
	ReconnectTimeout     time.Duration `mapstructure:"reconnect_timeout"`
	RestartTimeout       time.Duration `mapstructure:"restart_timeout"`
	RetryTimeout         time.Duration `mapstructure:"retry_timeout"`
	FrameTimeout         time.Duration `mapstructure:"frame_timeout"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	BufferSizeHint       int           `mapstructure:"buffer_size_hint"`
	ImmediateFallback    bool          `mapstructure:"immediate_fallback"`
	RecordingEnabled     bool          `mapstructure:"recording_enabled"`
	InferenceEnabled     bool          `mapstructure:"inference_enabled"`
}

// StreamConfig is one statically-configured stream entry.
type StreamConfig struct {
	ID               string   `mapstructure:"id"`
	URI              string   `mapstructure:"uri"`
	Enabled          bool     `mapstructure:"enabled"`
	RecordingEnabled bool     `mapstructure:"recording_enabled"`
	InferenceEnabled bool     `mapstructure:"inference_enabled"`
	RepublishTargets []string `mapstructure:"republish_targets"`
}

// BackupConfig is optional: off-box archival of finalized segments.
type BackupConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Destination string `mapstructure:"destination"`
	Schedule    string `mapstructure:"schedule"`
}

// RTSPConfig is optional: a republish/output listener for RtspOut branches.
type RTSPConfig struct {
	ListenPort  int           `mapstructure:"listen_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	FileEnabled    bool   `mapstructure:"file_enabled"`
	FilePath       string `mapstructure:"file_path"`
	MaxFileSizeMB  int    `mapstructure:"max_file_size_mb"`
	BackupCount    int    `mapstructure:"backup_count"`
	ConsoleEnabled bool   `mapstructure:"console_enabled"`
}

// Config is the complete service configuration.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	API            APIConfig            `mapstructure:"api"`
	Server         ServerConfig         `mapstructure:"server"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Database       *DatabaseConfig      `mapstructure:"database"`
	Recording      RecordingConfig      `mapstructure:"recording"`
	Inference      InferenceConfig      `mapstructure:"inference"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	StreamDefaults StreamDefaultsConfig `mapstructure:"stream_defaults"`
	Streams        []StreamConfig       `mapstructure:"streams"`
	Backup         *BackupConfig        `mapstructure:"backup"`
	RTSP           *RTSPConfig          `mapstructure:"rtsp"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}
