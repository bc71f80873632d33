package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mcclellann/loanbook/pkg/archive"
)

// Config holds runtime configuration read from the environment.
type Config struct {
	Addr           string        `envconfig:"ADDR" default:":8080"`
	DBPath         string        `envconfig:"DB_PATH" default:"loanbook.db"`
	WarnWindowDays int           `envconfig:"WARN_WINDOW_DAYS" default:"3"`
	DueSoonDays    int           `envconfig:"DUE_SOON_DAYS" default:"7"`
	AlertInterval  time.Duration `envconfig:"ALERT_INTERVAL" default:"24h"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"loanbook"`
	S3Prefix    string `envconfig:"S3_PREFIX" default:"exports"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`
}

// Load reads a .env file if one exists, then LOANBOOK_* variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("loanbook", &cfg); err != nil {
		return nil, err
	}
	if cfg.WarnWindowDays < 0 {
		return nil, errors.New("warn window must not be negative")
	}
	if cfg.DueSoonDays < 1 {
		return nil, errors.New("due soon window must be at least one day")
	}
	if cfg.AlertInterval <= 0 {
		return nil, errors.New("alert interval must be positive")
	}
	return &cfg, nil
}

// ArchiveEnabled reports whether an object storage endpoint is configured.
func (c *Config) ArchiveEnabled() bool {
	return c != nil && c.S3Endpoint != ""
}

func (c *Config) Archive() archive.ConnectionInfo {
	return archive.ConnectionInfo{
		Endpoint:  c.S3Endpoint,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Region:    c.S3Region,
		Bucket:    c.S3Bucket,
		Prefix:    c.S3Prefix,
		UseSSL:    c.S3UseSSL,
	}
}
