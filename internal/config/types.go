package config

import "time"

// Config represents the client configuration
type Config struct {
	BaseURL        string           `json:"baseUrl"`
	ClientID       string           `json:"clientId"` // value of the X-Client header
	LogLevel       string           `json:"logLevel"`
	RequestTimeout int              `json:"requestTimeout"` // ms
	MaxBatchCalls  int              `json:"maxBatchCalls"`  // calls per MDo handle, mirrors the server cap; negative means no cap
	Cache          *CacheConfig     `json:"cache,omitempty"`
	RateLimit      *RateLimitConfig `json:"rateLimit,omitempty"`
}

// CacheConfig represents entity cache configuration
type CacheConfig struct {
	Size int `json:"size"` // number of entities kept by id
}

// RateLimitConfig paces outgoing requests on the client side
type RateLimitConfig struct {
	Enabled bool    `json:"enabled"`
	RPS     float64 `json:"rps"`
	Burst   int     `json:"burst"`
}

// Default values
const (
	DefaultClientID       = "apiclient-go"
	DefaultLogLevel       = "info"
	DefaultRequestTimeout = 10000 // ms
	DefaultMaxBatchCalls  = 20
	DefaultCacheSize      = 10000
	DefaultRateLimitRPS   = 20
	DefaultRateLimitBurst = 50
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetCacheSize returns the configured entity cache size
func (c *Config) GetCacheSize() int {
	if c.Cache == nil || c.Cache.Size == 0 {
		return DefaultCacheSize
	}
	return c.Cache.Size
}

// IsRateLimitEnabled returns true if rate limiting is configured and enabled
func (c *Config) IsRateLimitEnabled() bool {
	return c.RateLimit != nil && c.RateLimit.Enabled
}
