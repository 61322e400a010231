package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Load reads, defaults and validates the configuration file
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	return Finalize(cfg)
}

// Read parses the configuration file without defaults or validation,
// so callers can apply overrides before Finalize
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Finalize applies defaults to cfg and validates it.
// Used directly when the config is assembled from flags instead of a file.
func Finalize(cfg *Config) (*Config, error) {
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxBatchCalls == 0 {
		cfg.MaxBatchCalls = DefaultMaxBatchCalls
	}
	if cfg.Cache != nil && cfg.Cache.Size == 0 {
		cfg.Cache.Size = DefaultCacheSize
	}
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		if cfg.RateLimit.RPS == 0 {
			cfg.RateLimit.RPS = DefaultRateLimitRPS
		}
		if cfg.RateLimit.Burst == 0 {
			cfg.RateLimit.Burst = DefaultRateLimitBurst
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.BaseURL == "" {
		return errors.New("baseUrl is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("baseUrl: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("baseUrl must use http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("baseUrl must include a host")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.Cache != nil && cfg.Cache.Size < 0 {
		return fmt.Errorf("cache.size must be positive")
	}

	if cfg.IsRateLimitEnabled() {
		if cfg.RateLimit.RPS <= 0 {
			return fmt.Errorf("rateLimit.rps must be positive when rate limiting is enabled")
		}
		if cfg.RateLimit.Burst <= 0 {
			return fmt.Errorf("rateLimit.burst must be positive when rate limiting is enabled")
		}
	}

	return nil
}
