package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	ServerAddr     string

	LogLevel  string
	LogFormat string

	CORSAllowedOrigins []string

	BracketMaxSize      int
	BracketRoundSpacing time.Duration

	Progression ProgressionConfig
	Archive     ArchiveConfig
}

type ProgressionConfig struct {
	Delay        time.Duration
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
}

type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Enabled reports whether completed brackets should be archived.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_DRIVER", "sqlite3")
	v.SetDefault("DATABASE_URL", "knockout_cup.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("BRACKET_MAX_SIZE", bracket.MaxBracketSize)
	v.SetDefault("BRACKET_ROUND_SPACING", bracket.DefaultRoundSpacing)
	v.SetDefault("PROGRESSION_DELAY", 2*time.Second)
	v.SetDefault("PROGRESSION_WORKERS", 2)
	v.SetDefault("PROGRESSION_MAX_ATTEMPTS", 5)
	v.SetDefault("PROGRESSION_RETRY_BACKOFF", time.Second)
	v.SetDefault("ARCHIVE_BUCKET", "")
	v.SetDefault("ARCHIVE_ENDPOINT", "")
	v.SetDefault("ARCHIVE_REGION", "auto")
	v.SetDefault("ARCHIVE_ACCESS_KEY_ID", "")
	v.SetDefault("ARCHIVE_SECRET_ACCESS_KEY", "")
	v.SetDefault("ARCHIVE_PREFIX", "brackets/")
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		DatabaseDriver:      strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		ServerAddr:          v.GetString("SERVER_ADDR"),
		LogLevel:            strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:           strings.ToLower(v.GetString("LOG_FORMAT")),
		CORSAllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		BracketMaxSize:      v.GetInt("BRACKET_MAX_SIZE"),
		BracketRoundSpacing: v.GetDuration("BRACKET_ROUND_SPACING"),
		Progression: ProgressionConfig{
			Delay:        v.GetDuration("PROGRESSION_DELAY"),
			Workers:      v.GetInt("PROGRESSION_WORKERS"),
			MaxAttempts:  v.GetInt("PROGRESSION_MAX_ATTEMPTS"),
			RetryBackoff: v.GetDuration("PROGRESSION_RETRY_BACKOFF"),
		},
		Archive: ArchiveConfig{
			Bucket:          v.GetString("ARCHIVE_BUCKET"),
			Endpoint:        v.GetString("ARCHIVE_ENDPOINT"),
			Region:          v.GetString("ARCHIVE_REGION"),
			AccessKeyID:     v.GetString("ARCHIVE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("ARCHIVE_SECRET_ACCESS_KEY"),
			Prefix:          v.GetString("ARCHIVE_PREFIX"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every bad key at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseDriver != "sqlite3" && c.DatabaseDriver != "postgres" {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER: unsupported driver %q", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL: must be set"))
	}
	if c.ServerAddr == "" {
		errs = append(errs, errors.New("SERVER_ADDR: must be set"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: must be json or text, got %q", c.LogFormat))
	}
	if !bracket.ValidBracketSize(c.BracketMaxSize, c.BracketMaxSize) {
		errs = append(errs, fmt.Errorf("BRACKET_MAX_SIZE: %d is not a power of two of at least %d", c.BracketMaxSize, bracket.MinBracketSize))
	}
	if c.BracketRoundSpacing <= 0 {
		errs = append(errs, errors.New("BRACKET_ROUND_SPACING: must be positive"))
	}
	if c.Progression.Delay < 0 {
		errs = append(errs, errors.New("PROGRESSION_DELAY: must not be negative"))
	}
	if c.Progression.Workers < 1 {
		errs = append(errs, errors.New("PROGRESSION_WORKERS: must be at least 1"))
	}
	if c.Progression.MaxAttempts < 1 {
		errs = append(errs, errors.New("PROGRESSION_MAX_ATTEMPTS: must be at least 1"))
	}
	if c.Progression.RetryBackoff < 0 {
		errs = append(errs, errors.New("PROGRESSION_RETRY_BACKOFF: must not be negative"))
	}
	if c.Archive.Enabled() && (c.Archive.AccessKeyID == "") != (c.Archive.SecretAccessKey == "") {
		errs = append(errs, errors.New("ARCHIVE_ACCESS_KEY_ID: must be set together with ARCHIVE_SECRET_ACCESS_KEY"))
	}
	return errors.Join(errs...)
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown level %q", c.LogLevel)
	}
	return level, nil
}
