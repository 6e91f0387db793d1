package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	DBPath     string `envconfig:"DB_PATH" default:"offline.db"`
	StorageDir string `envconfig:"STORAGE_DIR" required:"true"`
	ScratchDir string `envconfig:"SCRATCH_DIR"`

	DirectoryBaseURL string `envconfig:"DIRECTORY_BASE_URL" required:"true"`
	DirectoryToken   string `envconfig:"DIRECTORY_TOKEN"`
	AuthBaseURL      string `envconfig:"AUTH_BASE_URL"`
	AuthToken        string `envconfig:"AUTH_TOKEN"`
	UploadURL        string `envconfig:"UPLOAD_URL"`

	// Classes whose materials are prefetched for offline use.
	ClassIDs []string `envconfig:"CLASS_IDS"`

	PollInterval     time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	ViewerGrace      time.Duration `envconfig:"VIEWER_GRACE" default:"30s"`
	ScratchRetention time.Duration `envconfig:"SCRATCH_RETENTION" default:"1h"`
	CleanupInterval  time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	MaxParallel      int           `envconfig:"MAX_PARALLEL" default:"4"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"INFO"`

	WebhookURL string `envconfig:"WEBHOOK_URL"`

	Telemetry struct {
		Enabled        bool   `split_words:"true" default:"true"`
		ServiceName    string `split_words:"true" default:"eduthon-offline"`
		ServiceVersion string `split_words:"true" default:"dev"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
