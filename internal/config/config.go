// Package config provides configuration loading and validation for the pipeline agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents the agent configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Paths
	WatchDir      string `json:"watch_dir,omitempty"`      // Directory polled for source documents
	TargetsFile   string `json:"targets_file,omitempty"`   // Path to YAML publish target profiles
	ScreenshotDir string `json:"screenshot_dir,omitempty"` // Directory for publish step screenshots

	// Behavior
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	LogLevel    string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Verbose     bool   `json:"verbose,omitempty"` // Print detailed progress information

	// Workers
	PollInterval string `json:"poll_interval,omitempty"` // Source poll interval, e.g. "30s"
	WorkerLimit  int    `json:"worker_limit,omitempty" validate:"gte=0,lte=64"`
	StageTimeout string `json:"stage_timeout,omitempty"` // Per stage invocation timeout, e.g. "5m"
	MaxRetries   int    `json:"max_retries,omitempty" validate:"gte=0,lte=10"`

	// Publishing
	PublishTarget string `json:"publish_target,omitempty"` // Default target profile name
	StepAttempts  int    `json:"step_attempts,omitempty" validate:"gte=0,lte=10"`
	BackoffBase   string `json:"backoff_base,omitempty"` // Base delay for step retries, e.g. "2s"
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// Duration strings must parse when set
	for field, value := range map[string]string{
		"poll_interval": c.PollInterval,
		"stage_timeout": c.StageTimeout,
		"backoff_base":  c.BackoffBase,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("config error: %q is not a valid duration for %s", value, field)
		}
	}

	if c.WatchDir != "" {
		if _, err := os.Stat(c.WatchDir); os.IsNotExist(err) {
			return fmt.Errorf("config error: watch directory not found: %s", c.WatchDir)
		}
	}
	if c.TargetsFile != "" {
		if _, err := os.Stat(c.TargetsFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: targets file not found: %s", c.TargetsFile)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.WatchDir == "" {
		result.WatchDir = defaults.WatchDir
	}
	if result.TargetsFile == "" {
		result.TargetsFile = defaults.TargetsFile
	}
	if result.ScreenshotDir == "" {
		result.ScreenshotDir = defaults.ScreenshotDir
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.PollInterval == "" {
		result.PollInterval = defaults.PollInterval
	}
	if result.StageTimeout == "" {
		result.StageTimeout = defaults.StageTimeout
	}
	if result.PublishTarget == "" {
		result.PublishTarget = defaults.PublishTarget
	}
	if result.BackoffBase == "" {
		result.BackoffBase = defaults.BackoffBase
	}

	// Int fields: use default if zero
	if result.WorkerLimit == 0 {
		result.WorkerLimit = defaults.WorkerLimit
	}
	if result.MaxRetries == 0 {
		result.MaxRetries = defaults.MaxRetries
	}
	if result.StepAttempts == 0 {
		result.StepAttempts = defaults.StepAttempts
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// PollIntervalOrDefault returns the parsed poll interval, defaulting to 30s.
func (c *Config) PollIntervalOrDefault() time.Duration {
	return durationOrDefault(c.PollInterval, 30*time.Second)
}

// StageTimeoutOrDefault returns the parsed stage timeout, defaulting to 5m.
func (c *Config) StageTimeoutOrDefault() time.Duration {
	return durationOrDefault(c.StageTimeout, 5*time.Minute)
}

// BackoffBaseOrDefault returns the parsed backoff base, defaulting to 2s.
func (c *Config) BackoffBaseOrDefault() time.Duration {
	return durationOrDefault(c.BackoffBase, 2*time.Second)
}

func durationOrDefault(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
