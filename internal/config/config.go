// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Inference   InferenceConfig
	Watchdog    WatchdogConfig
}

// InferenceConfig controls the external evaluation service client.
type InferenceConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	MaxRetries     int
}

// WatchdogConfig controls the inactivity sweep.
type WatchdogConfig struct {
	Interval            time.Duration
	InactivityThreshold time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/progresspath.db"),
		Inference: InferenceConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			RequestTimeout: getEnvDuration("INFERENCE_TIMEOUT", 30*time.Second),
			MaxRetries:     getEnvInt("INFERENCE_MAX_RETRIES", 3),
		},
		Watchdog: WatchdogConfig{
			Interval:            getEnvDuration("WATCHDOG_INTERVAL", 60*time.Second),
			InactivityThreshold: getEnvDuration("INACTIVITY_THRESHOLD", 10*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Inference.RequestTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be > 0")
	}
	if c.Inference.MaxRetries <= 0 {
		return fmt.Errorf("INFERENCE_MAX_RETRIES must be > 0")
	}
	if c.Watchdog.Interval <= 0 {
		return fmt.Errorf("WATCHDOG_INTERVAL must be > 0")
	}
	if c.Watchdog.InactivityThreshold <= 0 {
		return fmt.Errorf("INACTIVITY_THRESHOLD must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
