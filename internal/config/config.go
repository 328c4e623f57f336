// Package config loads runtime settings for the personnel store.
//
// Settings come from, in increasing precedence: built-in defaults, an
// optional YAML file, and RENSHI_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Retry    RetryConfig    `yaml:"retry"`
	Log      LogConfig      `yaml:"log"`
	Import   ImportConfig   `yaml:"import"`
}

// DatabaseConfig locates and tunes the SQLite file.
type DatabaseConfig struct {
	// Path is the SQLite file (default: hr_data.db)
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite itself waits on a lock before
	// reporting it (default: 1s)
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetryConfig configures the contention retry policy.
type RetryConfig struct {
	// MaxAttempts includes the first attempt (default: 3)
	MaxAttempts int `yaml:"max_attempts"`

	// Delay between attempts (default: 500ms)
	Delay time.Duration `yaml:"delay"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ImportConfig configures the import report.
type ImportConfig struct {
	// SkipReasonLimit caps how many skip reasons the report message lists (default: 5)
	SkipReasonLimit int `yaml:"skip_reason_limit"`
}

// Environment variable names.
const (
	EnvDatabase  = "RENSHI_DB"
	EnvLogLevel  = "RENSHI_LOG_LEVEL"
	EnvLogFormat = "RENSHI_LOG_FORMAT"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "hr_data.db", BusyTimeout: time.Second},
		Retry:    RetryConfig{MaxAttempts: 3, Delay: 500 * time.Millisecond},
		Log:      LogConfig{Level: "info", Format: "console"},
		Import:   ImportConfig{SkipReasonLimit: 5},
	}
}

// Load builds a Config from defaults, the YAML file at path (if path is not
// empty) and the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvDatabase)); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(getenv(EnvLogFormat)); v != "" {
		cfg.Log.Format = v
	}
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, errors.New("database.busy_timeout must not be negative"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, errors.New("retry.delay must not be negative"))
	}
	if c.Import.SkipReasonLimit < 0 {
		errs = append(errs, errors.New("import.skip_reason_limit must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
