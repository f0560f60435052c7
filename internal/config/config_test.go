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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 72*time.Hour, cfg.CloseTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.DraftTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("KAPA_ADDR=:9999\nCLOSE_TOKEN_TTL=2h\nCORS_ORIGINS=https://a.example;https://b.example\n"), 0o600))
	t.Setenv("CLOSE_TOKEN_TTL", "30m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.CloseTokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())

	// godotenv sets process env; clear what the file added
	os.Unsetenv("KAPA_ADDR")
	os.Unsetenv("CORS_ORIGINS")
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "same")
	t.Setenv("CLOSE_TOKEN_SECRET", "same")
	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	assert.Error(t, err)
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	assert.Error(t, err)
}
