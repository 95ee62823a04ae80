// Package config holds the tap configuration.
//
// Configuration is organized into the tap settings read by the streams
// (api_key, api_url, start_date, ...) and the operational sections that
// tune the HTTP layer:
//   - RequestsCache: optional HTTP response cache
//   - Reliability: retry logic and client-side rate limiting
//   - Timeouts: request timeouts
//
// A Config is built once by Load and then passed by pointer to every
// component; nothing mutates it after Validate succeeds.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Version is the tap version reported by the CLI and the default User-Agent.
var Version = "0.1.0"

const (
	// DefaultAPIURL is the public Jotform API endpoint.
	DefaultAPIURL = "https://api.jotform.com"
	// DefaultPageSize is the number of records requested per page.
	DefaultPageSize = 100

	// CacheBackendSQLite stores cached responses in a SQLite file.
	CacheBackendSQLite = "sqlite"
	// CacheBackendMemory keeps cached responses for the life of the process.
	CacheBackendMemory = "memory"

	// NeverExpire keeps cached responses forever.
	NeverExpire = -1
)

// jotformDateLayout is the timestamp layout used by the Jotform API.
const jotformDateLayout = "2006-01-02 15:04:05"

// Config is the complete tap configuration.
type Config struct {
	// APIKey authenticates every request
	APIKey string `mapstructure:"api_key" json:"api_key" yaml:"api_key"`
	// APIURL is the API base URL
	APIURL string `mapstructure:"api_url" json:"api_url" yaml:"api_url"`
	// UserAgent is sent on every request
	UserAgent string `mapstructure:"user_agent" json:"user_agent" yaml:"user_agent"`
	// StartDate is the lower bound for incremental streams without a bookmark
	StartDate string `mapstructure:"start_date" json:"start_date,omitempty" yaml:"start_date,omitempty"`
	// IncludeDeprecatedStreams enables the folders stream
	IncludeDeprecatedStreams bool `mapstructure:"include_deprecated_streams" json:"include_deprecated_streams" yaml:"include_deprecated_streams"`
	// PageSize is the limit sent to paginated endpoints
	PageSize int `mapstructure:"page_size" json:"page_size" yaml:"page_size"`
	// LogLevel sets the zap level (debug, info, warn, error)
	LogLevel string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`

	RequestsCache RequestsCacheConfig `mapstructure:"requests_cache" json:"requests_cache" yaml:"requests_cache"`
	Reliability   ReliabilityConfig   `mapstructure:"reliability" json:"reliability" yaml:"reliability"`
	Timeouts      TimeoutConfig       `mapstructure:"timeouts" json:"timeouts" yaml:"timeouts"`
}

// RequestsCacheConfig toggles the HTTP response cache.
type RequestsCacheConfig struct {
	Enabled bool        `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Config  CacheConfig `mapstructure:"config" json:"config" yaml:"config"`
}

// CacheConfig configures the cache backend.
type CacheConfig struct {
	// ExpireAfter is the entry lifetime in seconds. -1 never expires,
	// 0 disables storing responses.
	ExpireAfter int `mapstructure:"expire_after" json:"expire_after" yaml:"expire_after"`
	// Backend is sqlite or memory
	Backend string `mapstructure:"backend" json:"backend" yaml:"backend"`
	// CacheName is the SQLite file name without the .sqlite suffix
	CacheName string `mapstructure:"cache_name" json:"cache_name" yaml:"cache_name"`
}

// ReliabilityConfig contains retry and rate limiting settings.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum retry attempts for failed requests
	RetryAttempts int `mapstructure:"retry_attempts" json:"retry_attempts" yaml:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `mapstructure:"retry_delay" json:"retry_delay" yaml:"retry_delay"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay" json:"max_retry_delay" yaml:"max_retry_delay"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec int `mapstructure:"rate_limit_per_sec" json:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
}

// TimeoutConfig contains timeout settings.
type TimeoutConfig struct {
	// Request bounds a single HTTP request including body read
	Request time.Duration `mapstructure:"request" json:"request" yaml:"request"`
}

// NewDefault returns a Config populated with defaults. APIKey is left empty.
func NewDefault() *Config {
	return &Config{
		APIURL:                   DefaultAPIURL,
		UserAgent:                DefaultUserAgent(),
		IncludeDeprecatedStreams: true,
		PageSize:                 DefaultPageSize,
		LogLevel:                 "info",
		RequestsCache: RequestsCacheConfig{
			Enabled: false,
			Config: CacheConfig{
				ExpireAfter: NeverExpire,
				Backend:     CacheBackendSQLite,
				CacheName:   "http_cache",
			},
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			MaxRetryDelay:   30 * time.Second,
			RateLimitPerSec: 0,
		},
		Timeouts: TimeoutConfig{
			Request: 30 * time.Second,
		},
	}
}

// DefaultUserAgent returns tap-jotform/<version>.
func DefaultUserAgent() string {
	return "tap-jotform/" + Version
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api_key is required")
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api_url must be an absolute URL, got %q", c.APIURL)
	}

	if c.StartDate != "" {
		if _, err := parseStartDate(c.StartDate); err != nil {
			return fmt.Errorf("start_date: %w", err)
		}
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}

	switch c.RequestsCache.Config.Backend {
	case CacheBackendSQLite, CacheBackendMemory:
	default:
		return fmt.Errorf("requests_cache.config.backend must be %q or %q, got %q",
			CacheBackendSQLite, CacheBackendMemory, c.RequestsCache.Config.Backend)
	}

	if c.RequestsCache.Config.ExpireAfter < NeverExpire {
		return fmt.Errorf("requests_cache.config.expire_after must be >= -1")
	}

	if c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("reliability.retry_attempts must be non-negative")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("reliability.rate_limit_per_sec must be non-negative")
	}
	if c.Timeouts.Request < 0 {
		return fmt.Errorf("timeouts.request must be non-negative")
	}

	return nil
}

// StartTime returns the parsed start_date and whether one was configured.
func (c *Config) StartTime() (time.Time, bool) {
	if c.StartDate == "" {
		return time.Time{}, false
	}
	t, err := parseStartDate(c.StartDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// StartBookmark renders start_date in the API's timestamp layout, or ""
// when no start date is configured.
func (c *Config) StartBookmark() string {
	t, ok := c.StartTime()
	if !ok {
		return ""
	}
	return t.UTC().Format(jotformDateLayout)
}

// CacheExpiry converts expire_after to a duration; negative means never.
func (c *Config) CacheExpiry() time.Duration {
	if c.RequestsCache.Config.ExpireAfter < 0 {
		return -1
	}
	return time.Duration(c.RequestsCache.Config.ExpireAfter) * time.Second
}

// CachePath is the SQLite file used by the sqlite backend.
func (c *Config) CachePath() string {
	name := c.RequestsCache.Config.CacheName
	if name == "" {
		name = "http_cache"
	}
	if strings.HasSuffix(name, ".sqlite") {
		return name
	}
	return name + ".sqlite"
}

func parseStartDate(s string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, time.RFC3339, jotformDateLayout, "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
