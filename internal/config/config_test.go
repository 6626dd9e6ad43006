package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8190, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "local-cluster", cfg.HubClusterName)
	assert.Equal(t, 1000, cfg.SearchMaxItems)
	assert.Equal(t, 3, cfg.SearchRetryAttempts)
	assert.True(t, cfg.AnsibleLookupEnabled)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KUBILITICS_PORT", "9000")
	t.Setenv("KUBILITICS_LOG_LEVEL", "debug")
	t.Setenv("KUBILITICS_HUB_CLUSTER_NAME", "hub")
	t.Setenv("KUBILITICS_SEARCH_MAX_ITEMS", "250")
	t.Setenv("KUBILITICS_ANSIBLE_LOOKUP_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "hub", cfg.HubClusterName)
	assert.Equal(t, 250, cfg.SearchMaxItems)
	assert.False(t, cfg.AnsibleLookupEnabled)
}

func TestLoad_AllowedOriginsCommaSeparated(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KUBILITICS_ALLOWED_ORIGINS", "http://localhost:3000, https://example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000", "https://example.com"}, cfg.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KUBILITICS_SEARCH_TIMEOUT_SEC", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search_timeout_sec")
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port: 8190, HubClusterName: "local-cluster", SearchTimeoutSec: 30, SearchMaxItems: 1000,
		SearchRetryAttempts: 1, StatusCacheTTLSec: 10, StatusCacheSize: 10, PollIntervalSec: 15, LogFormat: "json",
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.LogFormat = "xml"
	bad.StatusCacheSize = 0
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format")
	assert.Contains(t, err.Error(), "status_cache_size")

	disabled := valid
	disabled.StatusCacheTTLSec = 0
	disabled.StatusCacheSize = 0
	assert.NoError(t, disabled.Validate())
}
