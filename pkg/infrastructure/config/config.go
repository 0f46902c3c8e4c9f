// Package config loads restorefs configuration from an optional JSON file
// and fills in defaults for anything the file does not set. Command-line
// flags override file values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
)

// Config holds all restorefs configuration
type Config struct {
	// Restore Configuration
	Restore RestoreConfig `json:"restore"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// RestoreConfig holds restore-related configuration
type RestoreConfig struct {
	// Workers bounds the concurrency of the index build and the file
	// restore pass. Zero means the host CPU count.
	Workers int `json:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Restore: RestoreConfig{
			Workers: runtime.NumCPU(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a JSON file, falling back to
// defaults when path is empty or the file does not exist.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Restore.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Restore.Workers)
	}
	if c.Restore.Workers == 0 {
		c.Restore.Workers = runtime.NumCPU()
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	return nil
}
