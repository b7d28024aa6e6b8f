// Package config provides configuration management for streamvault using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort         = 8080
	defaultServerTimeout      = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 10
	defaultConnMaxLifetime    = 30 * time.Minute
	defaultMaxRecordings      = 5
	defaultTerminateTimeout   = 15 * time.Second
	defaultMonitorInterval    = 10 * time.Second
	defaultHeartbeatInterval  = 60 * time.Second
	defaultWorkersPerStreamer = 4
	defaultMaxStreamers       = 15
	defaultOrphanCheckLimit   = 3
	defaultTaskRetention      = 24 * time.Hour
	defaultStatsInterval      = 10 * time.Second
	defaultReaperInterval     = 30 * time.Second
	defaultConcatTimeout      = 10 * time.Minute
	defaultRemuxTimeout       = 10 * time.Minute
	defaultMinOutputSize      = 1024 // 1 KiB
	defaultSessionMaxAge      = 24 * time.Hour
	defaultSessionSweep       = "0 * * * *" // hourly
	defaultCaptureLogMaxSize  = 10 * 1024 * 1024
	defaultCaptureLogMaxFiles = 5
	defaultMaxRetries         = 3
	defaultThumbnailMaxWidth  = 640
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Recorder    RecorderConfig    `mapstructure:"recorder"`
	Queue       QueueConfig       `mapstructure:"queue"`
	PostProcess PostProcessConfig `mapstructure:"postprocess"`
	Recovery    RecoveryConfig    `mapstructure:"recovery"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// RecordingsDir is the root directory for recorded streams. Layout below
	// this root is <streamer>/Season YYYY-MM/<episode files>.
	RecordingsDir string `mapstructure:"recordings_dir"`
	// MediaDir holds artwork, profile images, and category images.
	// Kept hidden from media servers (defaults to <recordings_dir>/.media).
	MediaDir string `mapstructure:"media_dir"`
	// TempDir is used for scratch files during post-processing.
	TempDir string `mapstructure:"temp_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// RecorderConfig holds recording lifecycle configuration.
type RecorderConfig struct {
	// MaxConcurrentRecordings caps simultaneously active captures.
	MaxConcurrentRecordings int `mapstructure:"max_concurrent_recordings"`
	// TerminateTimeout is how long to wait after the graceful signal before
	// force-killing a capture child.
	TerminateTimeout time.Duration `mapstructure:"terminate_timeout"`
	// MonitorInterval is the capture monitor poll period.
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	// HeartbeatInterval is the minimum interval between durable heartbeats.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// DefaultQuality is the capture quality passed to the capture tool.
	DefaultQuality string `mapstructure:"default_quality"`
	// CodecPreference is the comma-separated codec preference list.
	CodecPreference string `mapstructure:"codec_preference"`
}

// QueueConfig holds background task queue configuration.
type QueueConfig struct {
	WorkersPerStreamer     int           `mapstructure:"workers_per_streamer"`
	MaxConcurrentStreamers int           `mapstructure:"max_concurrent_streamers"`
	OrphanCheckLimit       int           `mapstructure:"orphan_check_limit"`
	MaxRetries             int           `mapstructure:"max_retries"`
	CompletedRetention     time.Duration `mapstructure:"completed_retention"`
	StatsInterval          time.Duration `mapstructure:"stats_interval"`
}

// PostProcessConfig holds post-processing pipeline configuration.
type PostProcessConfig struct {
	ConcatTimeout time.Duration `mapstructure:"concat_timeout"`
	RemuxTimeout  time.Duration `mapstructure:"remux_timeout"`
	// MinOutputSize is the minimum valid output file size.
	// Supports human-readable values like "1KB", "5MB", or raw byte counts.
	MinOutputSize ByteSize `mapstructure:"min_output_size"`
	// ThumbnailMaxWidth bounds the extracted thumbnail width in pixels.
	ThumbnailMaxWidth int `mapstructure:"thumbnail_max_width"`
}

// RecoveryConfig holds recovery subsystem configuration.
type RecoveryConfig struct {
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`
	// StuckTaskAge is the age after which a running/pending task with a silent
	// heartbeat is reaped.
	StuckTaskAge time.Duration `mapstructure:"stuck_task_age"`
	// HeartbeatSilence is how long a heartbeat may be silent before a task is
	// considered stuck.
	HeartbeatSilence time.Duration `mapstructure:"heartbeat_silence"`
	// CaptureCompleteAge is how long a capture may sit at 100% before the
	// reaper marks it completed.
	CaptureCompleteAge time.Duration `mapstructure:"capture_complete_age"`
	// OrphanCheckMaxAge is the age after which an orphan-check task is cancelled.
	OrphanCheckMaxAge time.Duration `mapstructure:"orphan_check_max_age"`
}

// MaintenanceConfig holds session and share-token cleanup configuration.
type MaintenanceConfig struct {
	// SessionMaxAge is the age after which authentication sessions are deleted.
	SessionMaxAge time.Duration `mapstructure:"session_max_age"`
	// SessionSweepCron is the cron schedule for the session sweep.
	SessionSweepCron string `mapstructure:"session_sweep_cron"`
	// TokenSweepCron is the cron schedule for the share-token sweep.
	TokenSweepCron string `mapstructure:"token_sweep_cron"`
}

// CaptureConfig holds capture tool configuration.
type CaptureConfig struct {
	// BinaryPath is the path to the stream-capture tool (empty = "streamlink" on PATH).
	BinaryPath string `mapstructure:"binary_path"`
	// ProxyURL is an optional proxy for captures.
	ProxyURL string `mapstructure:"proxy_url"`
	// LogDir is the directory for per-streamer capture logs
	// (defaults to <storage.temp_dir>/capture-logs).
	LogDir string `mapstructure:"log_dir"`
	// LogMaxSize is the rotation threshold for a capture log file.
	LogMaxSize ByteSize `mapstructure:"log_max_size"`
	// LogMaxFiles is the number of rotated log files kept per streamer.
	LogMaxFiles int `mapstructure:"log_max_files"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = auto-detect)
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with STREAMVAULT_ and use underscores
// for nesting. Example: STREAMVAULT_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streamvault")
		v.AddConfigPath("$HOME/.streamvault")
	}

	v.SetEnvPrefix("STREAMVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file so that partial
// configuration files work.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "streamvault.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", defaultConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxLifetime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.recordings_dir", "./recordings")
	v.SetDefault("storage.media_dir", "")
	v.SetDefault("storage.temp_dir", "./tmp")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Recorder defaults
	v.SetDefault("recorder.max_concurrent_recordings", defaultMaxRecordings)
	v.SetDefault("recorder.terminate_timeout", defaultTerminateTimeout)
	v.SetDefault("recorder.monitor_interval", defaultMonitorInterval)
	v.SetDefault("recorder.heartbeat_interval", defaultHeartbeatInterval)
	v.SetDefault("recorder.default_quality", "best")
	v.SetDefault("recorder.codec_preference", "h264,h265")

	// Queue defaults
	v.SetDefault("queue.workers_per_streamer", defaultWorkersPerStreamer)
	v.SetDefault("queue.max_concurrent_streamers", defaultMaxStreamers)
	v.SetDefault("queue.orphan_check_limit", defaultOrphanCheckLimit)
	v.SetDefault("queue.max_retries", defaultMaxRetries)
	v.SetDefault("queue.completed_retention", defaultTaskRetention)
	v.SetDefault("queue.stats_interval", defaultStatsInterval)

	// Post-processing defaults
	v.SetDefault("postprocess.concat_timeout", defaultConcatTimeout)
	v.SetDefault("postprocess.remux_timeout", defaultRemuxTimeout)
	v.SetDefault("postprocess.min_output_size", defaultMinOutputSize)
	v.SetDefault("postprocess.thumbnail_max_width", defaultThumbnailMaxWidth)

	// Recovery defaults
	v.SetDefault("recovery.reaper_interval", defaultReaperInterval)
	v.SetDefault("recovery.stuck_task_age", 10*time.Minute)
	v.SetDefault("recovery.heartbeat_silence", 5*time.Minute)
	v.SetDefault("recovery.capture_complete_age", 5*time.Minute)
	v.SetDefault("recovery.orphan_check_max_age", 2*time.Minute)

	// Maintenance defaults
	v.SetDefault("maintenance.session_max_age", defaultSessionMaxAge)
	v.SetDefault("maintenance.session_sweep_cron", defaultSessionSweep)
	v.SetDefault("maintenance.token_sweep_cron", defaultSessionSweep)

	// Capture defaults
	v.SetDefault("capture.binary_path", "")
	v.SetDefault("capture.proxy_url", "")
	v.SetDefault("capture.log_dir", "")
	v.SetDefault("capture.log_max_size", defaultCaptureLogMaxSize)
	v.SetDefault("capture.log_max_files", defaultCaptureLogMaxFiles)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if c.Storage.RecordingsDir == "" {
		return fmt.Errorf("storage recordings_dir is required")
	}

	if c.Recorder.MaxConcurrentRecordings < 1 {
		return fmt.Errorf("recorder max_concurrent_recordings must be at least 1")
	}
	if c.Queue.WorkersPerStreamer < 1 {
		return fmt.Errorf("queue workers_per_streamer must be at least 1")
	}
	if c.Queue.MaxConcurrentStreamers < 1 {
		return fmt.Errorf("queue max_concurrent_streamers must be at least 1")
	}
	if c.PostProcess.MinOutputSize < 0 {
		return fmt.Errorf("postprocess min_output_size must not be negative")
	}

	return nil
}

// MediaDirOrDefault returns the configured media directory, defaulting to
// a hidden .media directory below the recordings root.
func (c *StorageConfig) MediaDirOrDefault() string {
	if c.MediaDir != "" {
		return c.MediaDir
	}
	return c.RecordingsDir + "/.media"
}
