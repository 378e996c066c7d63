// Package config provides application configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"leo-chat/internal/usecase"
)

const (
	DefaultAPIBaseURL     = "http://localhost:8000/api/v1"
	DefaultLanguage       = "en"
	DefaultRequestTimeout = 30 * time.Second
	DefaultStatusInterval = 30 * time.Second
)

// Parameter Store keys read under Config.ParamPrefix.
const (
	ParamAPIBaseURL      = "api_base_url"
	ParamLanguage        = "language"
	ParamIntentThreshold = "intent_threshold"
)

// Config holds all application configuration.
type Config struct {
	APIBaseURL      string
	Language        string
	IntentThreshold float64
	RequestTimeout  time.Duration
	StatusInterval  time.Duration
	LogLevel        string
	LogFile         string // TUI log destination; empty discards
	ParamPrefix     string
}

// ParamLookup is satisfied by *paramstore.Client.
type ParamLookup interface {
	Lookup(ctx context.Context, prefix string, keys ...string) (map[string]string, error)
}

// Load reads a .env file from the working directory when one exists, then
// the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIBaseURL:      envStr("LEO_API_BASE_URL", DefaultAPIBaseURL),
		Language:        envStr("LEO_LANGUAGE", DefaultLanguage),
		IntentThreshold: envFloat("LEO_INTENT_THRESHOLD", usecase.DefaultIntentThreshold),
		RequestTimeout:  envDuration("LEO_REQUEST_TIMEOUT", DefaultRequestTimeout),
		StatusInterval:  envDuration("LEO_STATUS_INTERVAL", DefaultStatusInterval),
		LogLevel:        envStr("LEO_LOG_LEVEL", "info"),
		LogFile:         envStr("LEO_LOG_FILE", ""),
		ParamPrefix:     envStr("LEO_PARAM_PREFIX", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyParamStore overrides the base URL, language and intent threshold with
// the values stored under ParamPrefix. Missing parameters are skipped.
func (c *Config) ApplyParamStore(ctx context.Context, p ParamLookup) error {
	if c.ParamPrefix == "" {
		return nil
	}
	vals, err := p.Lookup(ctx, c.ParamPrefix, ParamAPIBaseURL, ParamLanguage, ParamIntentThreshold)
	if err != nil {
		return fmt.Errorf("config: parameter store: %w", err)
	}
	if v := strings.TrimSpace(vals[ParamAPIBaseURL]); v != "" {
		c.APIBaseURL = v
	}
	if v := strings.TrimSpace(vals[ParamLanguage]); v != "" {
		c.Language = v
	}
	if v := strings.TrimSpace(vals[ParamIntentThreshold]); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: parameter %s: %w", ParamIntentThreshold, err)
		}
		c.IntentThreshold = f
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Validate checks that all configuration fields are usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("LEO_API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	if strings.TrimSpace(c.Language) == "" {
		return fmt.Errorf("LEO_LANGUAGE cannot be empty")
	}
	if c.IntentThreshold < 0 || c.IntentThreshold > 1 {
		return fmt.Errorf("LEO_INTENT_THRESHOLD must be within [0,1], got %v", c.IntentThreshold)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("LEO_REQUEST_TIMEOUT must be > 0")
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("LEO_STATUS_INTERVAL must be > 0")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LEO_LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go duration syntax or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
