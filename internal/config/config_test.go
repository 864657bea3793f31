package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("QUICKGIG_JWT_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 90, cfg.Notifications.RetentionDays)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("QUICKGIG_JWT_SECRET", "")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
auth:
  jwt_secret: file-secret
push:
  endpoint: https://push.example.com/send
`), 0o600))

	t.Setenv("QUICKGIG_PORT", "9191")
	t.Setenv("QUICKGIG_JWT_SECRET", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "https://push.example.com/send", cfg.Push.Endpoint)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("QUICKGIG_JWT_SECRET", "s")
	t.Setenv("QUICKGIG_PORT", "70000")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	t.Setenv("QUICKGIG_JWT_SECRET", "s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
