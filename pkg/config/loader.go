package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment overrides, e.g. TAP_JOTFORM_API_KEY.
const EnvPrefix = "TAP_JOTFORM"

// Load reads the config file at path (JSON or YAML), applies defaults and
// TAP_JOTFORM_* environment overrides, and validates the result. An empty
// path loads from the environment only.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		v.SetConfigType(configType(path))
		if err := v.ReadConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, e.g. to produce a sample config.
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	d := NewDefault()

	// Every key needs a default so that AutomaticEnv can see it on Unmarshal.
	v.SetDefault("api_key", "")
	v.SetDefault("api_url", d.APIURL)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("start_date", "")
	v.SetDefault("include_deprecated_streams", d.IncludeDeprecatedStreams)
	v.SetDefault("page_size", d.PageSize)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("requests_cache.enabled", d.RequestsCache.Enabled)
	v.SetDefault("requests_cache.config.expire_after", d.RequestsCache.Config.ExpireAfter)
	v.SetDefault("requests_cache.config.backend", d.RequestsCache.Config.Backend)
	v.SetDefault("requests_cache.config.cache_name", d.RequestsCache.Config.CacheName)
	v.SetDefault("reliability.retry_attempts", d.Reliability.RetryAttempts)
	v.SetDefault("reliability.retry_delay", d.Reliability.RetryDelay)
	v.SetDefault("reliability.max_retry_delay", d.Reliability.MaxRetryDelay)
	v.SetDefault("reliability.rate_limit_per_sec", d.Reliability.RateLimitPerSec)
	v.SetDefault("timeouts.request", d.Timeouts.Request)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
