package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"COMFY_PROTOCOL", "COMFY_ADDRESS", "COMFY_PORT", "COMFY_WAIT_TIMEOUT",
	"COMFY_CONNECT_RETRIES", "COMFY_FETCH_CONCURRENCY", "COMFY_INTERRUPT_ON_CANCEL",
	"COMFY_LOG_LEVEL", "COMFY_LOG_FORMAT",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards
func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ServerConfig{Protocol: "http", Address: "127.0.0.1", Port: 8188}, cfg.Server)
	assert.Equal(t, "http://127.0.0.1:8188", cfg.Server.URL())
	assert.Equal(t, time.Duration(0), cfg.WaitTimeout)
	assert.Equal(t, 3, cfg.ConnectRetries)
	assert.Equal(t, 1, cfg.FetchConcurrency)
	assert.False(t, cfg.InterruptOnCancel)
	assert.Equal(t, LogConfig{Level: "info", Format: "text"}, cfg.Log)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("COMFY_ADDRESS", "192.168.86.218")
	t.Setenv("COMFY_PORT", "8189")
	t.Setenv("COMFY_WAIT_TIMEOUT", "90s")
	t.Setenv("COMFY_FETCH_CONCURRENCY", "4")
	t.Setenv("COMFY_INTERRUPT_ON_CANCEL", "true")
	t.Setenv("COMFY_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.86.218:8189", cfg.Server.URL())
	assert.Equal(t, 90*time.Second, cfg.WaitTimeout)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.True(t, cfg.InterruptOnCancel)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("COMFY_ADDRESS=comfy.local\nCOMFY_WAIT_TIMEOUT=120\n"), 0o600))

	// godotenv does not override variables that are already set, even empty ones
	require.NoError(t, os.Unsetenv("COMFY_ADDRESS"))
	require.NoError(t, os.Unsetenv("COMFY_WAIT_TIMEOUT"))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "comfy.local", cfg.Server.Address)
	assert.Equal(t, 120*time.Second, cfg.WaitTimeout)
}

func TestLoadMissingEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"COMFY_PROTOCOL", "ftp"},
		{"COMFY_PORT", "70000"},
		{"COMFY_LOG_LEVEL", "loud"},
		{"COMFY_CONNECT_RETRIES", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}
