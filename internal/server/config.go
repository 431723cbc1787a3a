// Package server provides configuration helpers that define runtime defaults,
// validation, and file/environment loading for the relay.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = "3001"
	defaultMaxMessageSize = 10 * 1024 * 1024
	defaultSendBufferSize = 256
)

// Config holds the server configuration settings.
type Config struct {
	Port                string        `yaml:"port"`
	AllowedOrigins      []string      `yaml:"allowed_origins"`
	MaxMessageSize      int64         `yaml:"max_message_size"`
	SendBufferSize      int           `yaml:"send_buffer_size"`
	RequireRegistration bool          `yaml:"require_registration"`
	MetricsLogInterval  time.Duration `yaml:"-"`
	LogLevel            string        `yaml:"log_level"`
	LogFormat           string        `yaml:"log_format"`
}

// fileConfig mirrors Config for YAML, where the interval is given in seconds.
type fileConfig struct {
	Config             `yaml:",inline"`
	MetricsLogInterval int `yaml:"metrics_log_interval"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:3001",
		},
		MaxMessageSize: defaultMaxMessageSize,
		SendBufferSize: defaultSendBufferSize,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Sanitize replaces invalid values with defaults and returns the result.
func (c Config) Sanitize() Config {
	if strings.TrimSpace(c.Port) == "" {
		c.Port = defaultPort
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBufferSize
	}

	if c.MetricsLogInterval < 0 {
		c.MetricsLogInterval = 0
	}

	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// Addr returns the listen address derived from Port.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// LoadConfigFile reads YAML settings from path on top of base.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator flags
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfigYAML(data, base)
}

// ParseConfigYAML applies YAML settings on top of base. Keys missing from the
// document keep their value from base.
func ParseConfigYAML(data []byte, base Config) (Config, error) {
	fc := fileConfig{
		Config:             base,
		MetricsLogInterval: int(base.MetricsLogInterval / time.Second),
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("parse config file: %w", err)
	}

	cfg := fc.Config
	cfg.MetricsLogInterval = time.Duration(fc.MetricsLogInterval) * time.Second
	return cfg, nil
}

// ApplyEnv overrides cfg with any environment variables that are set.
// Unparseable values are ignored.
func ApplyEnv(cfg Config) Config {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		cfg.SendBufferSize = parseIntValue(size, cfg.SendBufferSize)
	}

	if required := os.Getenv("REQUIRE_REGISTRATION"); required != "" {
		if v, err := strconv.ParseBool(required); err == nil {
			cfg.RequireRegistration = v
		}
	}

	if interval := os.Getenv("METRICS_LOG_INTERVAL"); interval != "" {
		cfg.MetricsLogInterval = parseInterval(interval, cfg.MetricsLogInterval)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	return cfg
}

// NewConfigFromEnv creates a Config from defaults overridden by the environment.
func NewConfigFromEnv() Config {
	return ApplyEnv(DefaultConfig()).Sanitize()
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseInterval reads a number of seconds; 0 disables the interval.
func parseInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
