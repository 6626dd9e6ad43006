package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port           int      `mapstructure:"port"`
	LogLevel       string   `mapstructure:"log_level"`
	LogFormat      string   `mapstructure:"log_format"` // json | console
	LogFile        string   `mapstructure:"log_file"`   // rotated file sink; empty = stderr only
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	HubClusterName string `mapstructure:"hub_cluster_name"`

	SearchURL             string  `mapstructure:"search_url"`
	SearchTimeoutSec      int     `mapstructure:"search_timeout_sec"`
	SearchMaxItems        int     `mapstructure:"search_max_items"`
	SearchRateLimitPerSec float64 `mapstructure:"search_rate_limit_per_sec"` // 0 = no limit
	SearchRateLimitBurst  int     `mapstructure:"search_rate_limit_burst"`
	SearchRetryAttempts   int     `mapstructure:"search_retry_attempts"`
	SearchToken           string  `mapstructure:"search_token"`

	KubeconfigPath       string `mapstructure:"kubeconfig_path"`
	AnsibleLookupEnabled bool   `mapstructure:"ansible_lookup_enabled"`

	StatusCacheTTLSec int `mapstructure:"status_cache_ttl_sec"` // 0 = cache disabled
	StatusCacheSize   int `mapstructure:"status_cache_size"`
	PollIntervalSec   int `mapstructure:"poll_interval_sec"`

	TracingEndpoint     string  `mapstructure:"tracing_endpoint"`
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate"`

	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/kubilitics/")
	v.AddConfigPath("$HOME/.kubilitics")
	v.AddConfigPath(".")

	// Defaults
	v.SetDefault("port", 8190)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("hub_cluster_name", "local-cluster")
	v.SetDefault("search_url", "https://search-search-api.open-cluster-management.svc:4010/searchapi/graphql")
	v.SetDefault("search_timeout_sec", 30)
	v.SetDefault("search_max_items", 1000)
	v.SetDefault("search_rate_limit_per_sec", 0)
	v.SetDefault("search_rate_limit_burst", 0)
	v.SetDefault("search_retry_attempts", 3)
	v.SetDefault("search_token", "")
	v.SetDefault("kubeconfig_path", "")
	v.SetDefault("ansible_lookup_enabled", true)
	v.SetDefault("status_cache_ttl_sec", 15)
	v.SetDefault("status_cache_size", 256)
	v.SetDefault("poll_interval_sec", 15)
	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_sampling_rate", 1.0)
	v.SetDefault("shutdown_timeout_sec", 15)

	// Environment variables
	v.SetEnvPrefix("KUBILITICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.HubClusterName == "" {
		errs = append(errs, errors.New("hub_cluster_name is required"))
	}
	if c.SearchTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("search_timeout_sec must be positive, got %d", c.SearchTimeoutSec))
	}
	if c.SearchMaxItems <= 0 {
		errs = append(errs, fmt.Errorf("search_max_items must be positive, got %d", c.SearchMaxItems))
	}
	if c.SearchRetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("search_retry_attempts must be at least 1, got %d", c.SearchRetryAttempts))
	}
	if c.StatusCacheTTLSec > 0 && c.StatusCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("status_cache_size must be positive when the cache is enabled, got %d", c.StatusCacheSize))
	}
	if c.PollIntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval_sec must be positive, got %d", c.PollIntervalSec))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// splitOrigins accepts the env form "a,b,c" as well as a YAML list.
func splitOrigins(in []string) []string {
	var out []string
	for _, o := range in {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
