package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, AuthModeKeyOrSession, cfg.Ingest.AuthMode)
	assert.Equal(t, WriteStrategyTransaction, cfg.Ingest.WriteStrategy)
	assert.Equal(t, "lct_", cfg.APIKeys.Prefix)
	assert.Equal(t, "sb-access-token", cfg.Session.AccessCookie)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: "9000"
ingest:
  write_strategy: compensate
  max_body_size: 1024
session:
  protected_prefixes: ["/app"]
`), 0o644))

	t.Setenv("PORT", "9100")
	t.Setenv("API_KEY_TOUCH_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(noEnvFile(t), file)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, WriteStrategyCompensate, cfg.Ingest.WriteStrategy)
	assert.Equal(t, int64(1024), cfg.Ingest.MaxBodySize)
	assert.Equal(t, []string{"/app"}, cfg.Session.ProtectedPrefixes)
	assert.Equal(t, 2*time.Second, cfg.APIKeys.TouchTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "sb-refresh-token", cfg.Session.RefreshCookie, "unset values keep defaults")
}

func TestLoad_DotEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("INGEST_AUTH_MODE=session_only\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("INGEST_AUTH_MODE") })

	cfg, err := Load(envFile, "")
	require.NoError(t, err)
	assert.Equal(t, AuthModeSessionOnly, cfg.Ingest.AuthMode)
}

func TestLoad_RejectsInvalidSettings(t *testing.T) {
	t.Run("auth mode", func(t *testing.T) {
		t.Setenv("INGEST_AUTH_MODE", "anyone")
		_, err := Load(noEnvFile(t), "")
		assert.ErrorContains(t, err, "INGEST_AUTH_MODE")
	})
	t.Run("write strategy", func(t *testing.T) {
		t.Setenv("INGEST_WRITE_STRATEGY", "yolo")
		_, err := Load(noEnvFile(t), "")
		assert.ErrorContains(t, err, "INGEST_WRITE_STRATEGY")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(noEnvFile(t), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestDSN(t *testing.T) {
	cfg := Defaults()
	assert.Contains(t, cfg.DSN(), "dbname=context_teleporter")

	cfg.Database.URL = "postgres://u:p@db:5432/x"
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DSN())
}
