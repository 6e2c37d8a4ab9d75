package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAndValidateRuntimeConfig(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfigFile(t, `
run_budget: "10m"
pretty_logs: true
redis:
  addr: "localhost:6379"
  cache_ttl: "30m"
`)
		cfg, err := LoadAndValidateRuntimeConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Minute, cfg.RunBudget)
		assert.True(t, cfg.PrettyLogs)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
		assert.Equal(t, 30*time.Minute, cfg.Redis.CacheTTL)
	})

	t.Run("defaults applied", func(t *testing.T) {
		path := writeConfigFile(t, `pretty_logs: false`)
		cfg, err := LoadAndValidateRuntimeConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 14*time.Minute, cfg.RunBudget)
	})

	t.Run("redis ttl defaulted when addr set", func(t *testing.T) {
		path := writeConfigFile(t, `
redis:
  addr: "localhost:6379"
`)
		cfg, err := LoadAndValidateRuntimeConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 1*time.Hour, cfg.Redis.CacheTTL)
	})

	t.Run("bad duration rejected", func(t *testing.T) {
		path := writeConfigFile(t, `run_budget: "soon"`)
		_, err := LoadAndValidateRuntimeConfig(path)
		require.Error(t, err)
	})

	t.Run("negative budget rejected", func(t *testing.T) {
		path := writeConfigFile(t, `run_budget: "-5m"`)
		_, err := LoadAndValidateRuntimeConfig(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadAndValidateRuntimeConfig("/nonexistent/config.yaml")
		require.Error(t, err)
	})
}
