package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaizenhq/a3hub/pkg/observability"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 20, cfg.Limits.SearchRateLimit)
	assert.Equal(t, time.Minute, cfg.Limits.SearchRateWindow)
	assert.Equal(t, 10, cfg.Limits.MaxContentDepth)
	assert.Equal(t, 50*1024, cfg.Limits.MaxContentBytes)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "8081"
limits:
  search_rate_limit: 5
redis:
  addr: "localhost:6379"
observability:
  log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Limits.SearchRateLimit)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.Limits.MaxContentDepth)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"8081\"\n"), 0o644))
	t.Setenv("A3HUB_PORT", "8082")
	t.Setenv("A3HUB_SEARCH_RATE_LIMIT", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8082", cfg.Server.Port)
	assert.Equal(t, 7, cfg.Limits.SearchRateLimit)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("A3HUB_SEARCH_RATE_LIMIT", "-1")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_PortClash(t *testing.T) {
	t.Setenv("A3HUB_PORT", "9090")
	_, err := Load("")
	assert.Error(t, err)
}
