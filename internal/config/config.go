package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Access   AccessConfig   `yaml:"access"`
	Storage  StorageConfig  `yaml:"storage"`
	Media    MediaConfig    `yaml:"media"`
	Worker   WorkerConfig   `yaml:"worker"`
	Download DownloadConfig `yaml:"download"`
	Session  SessionConfig  `yaml:"session"`
	Server   ServerConfig   `yaml:"server"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Log      LogConfig      `yaml:"log"`
}

// TelegramConfig holds bot API configuration.
type TelegramConfig struct {
	Token         string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID       int64  `yaml:"admin_id" envconfig:"ADMIN_ID"`
	WebhookURL    string `yaml:"webhook_url" envconfig:"WEBHOOK_URL"`
	WebhookSecret string `yaml:"webhook_secret" envconfig:"WEBHOOK_SECRET"`
	PollTimeout   int    `yaml:"poll_timeout" envconfig:"POLL_TIMEOUT" default:"60"`
	Debug         bool   `yaml:"debug" envconfig:"BOT_DEBUG" default:"false"`
}

// AccessConfig holds password gate configuration.
type AccessConfig struct {
	// Password is either plain text or a bcrypt hash.
	Password      string        `yaml:"password" envconfig:"ACCESS_PASSWORD"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"ACCESS_TIMEOUT" default:"1h"`
	AdminDuration time.Duration `yaml:"admin_duration" envconfig:"ADMIN_ACCESS_DURATION" default:"876000h"` // ~100 years
	AttemptRate   float64       `yaml:"attempt_rate" envconfig:"PASSWORD_RATE" default:"0.2"`
	AttemptBurst  int           `yaml:"attempt_burst" envconfig:"PASSWORD_BURST" default:"5"`
}

// StorageConfig holds filesystem and database locations.
type StorageConfig struct {
	VideoDir     string `yaml:"video_dir" envconfig:"VIDEO_DIR"`
	ThumbnailDir string `yaml:"thumbnail_dir" envconfig:"THUMBNAIL_DIR"`
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH"`
	MaxFileSize  int64  `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE" default:"20971520"`    // 20MB, bot API getFile limit
	MinFreeSpace int64  `yaml:"min_free_space" envconfig:"MIN_FREE_SPACE" default:"104857600"` // 100MB
}

// MediaConfig holds thumbnail extraction configuration.
type MediaConfig struct {
	FFmpegPath       string `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH"`
	FFprobePath      string `yaml:"ffprobe_path" envconfig:"FFPROBE_PATH"`
	ThumbnailSize    int    `yaml:"thumbnail_size" envconfig:"THUMBNAIL_SIZE" default:"320"`
	ThumbnailQuality int    `yaml:"thumbnail_quality" envconfig:"THUMBNAIL_QUALITY" default:"85"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count       int `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
	QueueSize   int `yaml:"queue_size" envconfig:"WORKER_QUEUE_SIZE" default:"16"`
	MaxInFlight int `yaml:"max_in_flight" envconfig:"MAX_IN_FLIGHT_UPDATES" default:"64"`
}

// DownloadConfig holds video download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"10m"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"2s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"30s"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT" default:"60s"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"vidvault/1.0"`
}

// SessionConfig holds conversation session configuration.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout" envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
}

// ServerConfig holds the health and webhook HTTP listener configuration.
// A zero port disables the listener.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
}

// JanitorConfig holds orphaned file cleanup configuration.
// An empty schedule disables the janitor.
type JanitorConfig struct {
	Schedule string        `yaml:"schedule" envconfig:"JANITOR_SCHEDULE" default:"0 4 * * *"`
	MinAge   time.Duration `yaml:"min_age" envconfig:"JANITOR_MIN_AGE" default:"24h"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
}

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are ignored and variables already set are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Telegram.AdminID == 0 {
		return fmt.Errorf("ADMIN_ID is required")
	}
	if c.Access.Password == "" {
		return fmt.Errorf("ACCESS_PASSWORD is required")
	}
	if c.Access.Timeout <= 0 {
		return fmt.Errorf("ACCESS_TIMEOUT must be positive")
	}
	if c.Storage.VideoDir == "" {
		return fmt.Errorf("VIDEO_DIR is required")
	}
	if c.Storage.ThumbnailDir == "" {
		return fmt.Errorf("THUMBNAIL_DIR is required")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	// The janitor sweeps the media directories.
	for _, dir := range []string{c.Storage.VideoDir, c.Storage.ThumbnailDir} {
		if within(dir, c.Storage.DatabasePath) {
			return fmt.Errorf("DATABASE_PATH must not be inside %s", dir)
		}
	}
	if c.Media.ThumbnailSize <= 0 {
		return fmt.Errorf("THUMBNAIL_SIZE must be positive")
	}
	if c.Media.ThumbnailQuality < 1 || c.Media.ThumbnailQuality > 100 {
		return fmt.Errorf("THUMBNAIL_QUALITY must be between 1 and 100")
	}
	if c.Telegram.WebhookURL != "" {
		if !strings.HasPrefix(c.Telegram.WebhookURL, "https://") {
			return fmt.Errorf("WEBHOOK_URL must use https")
		}
		if c.Server.Port <= 0 {
			return fmt.Errorf("SERVER_PORT is required when WEBHOOK_URL is set")
		}
	}
	return nil
}

// within reports whether path lies in dir or one of its subdirectories.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether the HTTP listener should run.
func (c *ServerConfig) Enabled() bool {
	return c.Port > 0
}

// UseWebhook reports whether updates arrive by webhook instead of long polling.
func (c *TelegramConfig) UseWebhook() bool {
	return c.WebhookURL != ""
}

// SlogLevel maps the configured level name to a slog.Level, defaulting to info.
func (c *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
