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
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, time.Hour, cfg.ScanInterval)
	assert.Equal(t, 30*time.Second, cfg.ScanInitialDelay)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, time.UTC, cfg.ReviewLocation)
	assert.True(t, cfg.EnableScheduler)
}

func TestLoadDevelopmentScansMoreOften(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.ScanInterval)
	assert.Equal(t, "development", cfg.LogMode)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "SCAN_INTERVAL=10m\nREVIEW_TIMEZONE=Europe/Berlin\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	t.Setenv("ENV_FILE", envFile)
	// godotenv never overrides variables that are already set
	for _, k := range []string{"SCAN_INTERVAL", "REVIEW_TIMEZONE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.ScanInterval)
	assert.Equal(t, "Europe/Berlin", cfg.ReviewLocation.String())
}

func TestLoadRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown db", env: map[string]string{"DB_TYPE": "mongo"}},
		{name: "postgres without url", env: map[string]string{"DB_TYPE": "postgres"}},
		{name: "bad timezone", env: map[string]string{"REVIEW_TIMEZONE": "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
