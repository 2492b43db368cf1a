// Package config provides configuration management for the memory agents.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMemoryDSN             = "sqlite://./jenkins-memory.db"
	DefaultMaxMessages           = 100
	DefaultRetentionInterval     = time.Hour
	DefaultRetentionInitialDelay = time.Hour
)

// Config holds the application configuration.
type Config struct {
	// RedpandaBrokers lists seed brokers. Empty means local in-memory mode.
	RedpandaBrokers []string

	// MemoryDSN selects the conversation store (postgres://, sqlite:// or file:).
	MemoryDSN string

	// MaxMessagesPerConversation is the retention window.
	MaxMessagesPerConversation int

	// RetentionInterval is the time between retention sweeps.
	RetentionInterval time.Duration

	// RetentionInitialDelay is the wait before the first sweep.
	RetentionInitialDelay time.Duration

	// MetricsAddr is the listen address for /metrics. Empty disables it.
	MetricsAddr string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		RedpandaBrokers:            splitList(os.Getenv("REDPANDA_BROKERS")),
		MemoryDSN:                  envOr("MEMORY_DSN", DefaultMemoryDSN),
		MaxMessagesPerConversation: DefaultMaxMessages,
		RetentionInterval:          DefaultRetentionInterval,
		RetentionInitialDelay:      DefaultRetentionInitialDelay,
		MetricsAddr:                os.Getenv("METRICS_ADDR"),
		LogLevel:                   envOr("LOG_LEVEL", "info"),
		LogFormat:                  envOr("LOG_FORMAT", "console"),
		LogFile:                    os.Getenv("LOG_FILE"),
	}

	if v := os.Getenv("MAX_MESSAGES_PER_CONVERSATION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MAX_MESSAGES_PER_CONVERSATION must be an integer: %w", err)
		}
		cfg.MaxMessagesPerConversation = n
	}

	var err error
	if cfg.RetentionInterval, err = envDuration("RETENTION_INTERVAL", cfg.RetentionInterval); err != nil {
		return nil, err
	}
	if cfg.RetentionInitialDelay, err = envDuration("RETENTION_INITIAL_DELAY", cfg.RetentionInitialDelay); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadFromEnv loads configuration from environment variables and panics on error.
// This is useful for initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.MemoryDSN == "" {
		return fmt.Errorf("MEMORY_DSN must not be empty")
	}
	if c.MaxMessagesPerConversation < 1 {
		return fmt.Errorf("MAX_MESSAGES_PER_CONVERSATION must be at least 1, got %d", c.MaxMessagesPerConversation)
	}
	if c.RetentionInterval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be positive, got %s", c.RetentionInterval)
	}
	if c.RetentionInitialDelay < 0 {
		return fmt.Errorf("RETENTION_INITIAL_DELAY must not be negative, got %s", c.RetentionInitialDelay)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// LocalMode reports whether no Redpanda brokers are configured.
func (c *Config) LocalMode() bool {
	return len(c.RedpandaBrokers) == 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30m or 1h: %w", key, err)
	}
	return d, nil
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
