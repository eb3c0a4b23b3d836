package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Settings.Backend)
	assert.Equal(t, 3, cfg.Backend.RetryMaxAttempts)
	assert.True(t, cfg.Backend.BreakerEnabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DESK_BACKEND_URL", "http://analysis:9000")
	t.Setenv("DESK_SETTINGS_BACKEND", "file")
	t.Setenv("DESK_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://analysis:9000", cfg.Backend.URL)
	assert.Equal(t, "file", cfg.Settings.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: "127.0.0.1:9999"
backend:
  url: http://example.test
  retry_initial_backoff_ms: 10
  breaker_open_timeout_secs: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)

	retry := cfg.Backend.Retry()
	assert.Equal(t, 10*time.Millisecond, retry.InitialBackoff)
	assert.Equal(t, 5*time.Second, retry.BreakerOpenTimeout)
}

func TestExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsUnknownSettingsBackend(t *testing.T) {
	t.Setenv("DESK_SETTINGS_BACKEND", "redis")
	_, err := Load("")
	require.Error(t, err)
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	require.Error(t, InitLogger(LogConfig{Level: "loud"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "console"}))
}
