package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/heysubinoy/pyazwatch/pkg/log"
)

const (
	DefaultGRPCAddr    = ":9090"
	DefaultHTTPAddr    = ":8080"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
	DefaultWatchBuffer = 256
)

type Config struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	WatchBuffer int    `yaml:"watch_buffer"`
}

// LoadConfig loads configuration from a YAML file if path is provided,
// otherwise it falls back to environment variables.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	// If path is provided and file exists, load from YAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables win over file values
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides allows environment variables to override YAML config values
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		cfg.GRPCAddr = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("WATCH_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WATCH_BUFFER value: %w", err)
		}
		cfg.WatchBuffer = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	if cfg.WatchBuffer == 0 {
		cfg.WatchBuffer = DefaultWatchBuffer
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if _, err := log.ParseType(c.LogFormat); err != nil {
		return fmt.Errorf("invalid log_format: %w", err)
	}
	if c.WatchBuffer < 0 {
		return fmt.Errorf("watch_buffer must not be negative, got %d", c.WatchBuffer)
	}
	return nil
}

// Level returns the parsed log level. Validate has already rejected bad
// values for configs produced by LoadConfig.
func (c *Config) Level() log.Level {
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// LoggerType returns the parsed log format.
func (c *Config) LoggerType() log.LoggerType {
	t, _ := log.ParseType(c.LogFormat)
	return t
}

// RestartFields lists the fields that differ between c and next and only
// take effect after a restart.
func (c *Config) RestartFields(next *Config) []string {
	var fields []string
	if c.GRPCAddr != next.GRPCAddr {
		fields = append(fields, "grpc_addr")
	}
	if c.HTTPAddr != next.HTTPAddr {
		fields = append(fields, "http_addr")
	}
	if c.LogFormat != next.LogFormat {
		fields = append(fields, "log_format")
	}
	if c.WatchBuffer != next.WatchBuffer {
		fields = append(fields, "watch_buffer")
	}
	return fields
}
