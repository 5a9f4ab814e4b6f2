package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, 300*time.Second, cfg.Interval)
	assert.Equal(t, 30, cfg.TopN)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Zero(t, cfg.MaxFailureRatio)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }},
		{"zero top-n", func(c *Config) { c.TopN = 0 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"ratio above one", func(c *Config) { c.MaxFailureRatio = 1.5 }},
		{"negative ratio", func(c *Config) { c.MaxFailureRatio = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("zero interval is one-shot", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Interval = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestDefaultConfigLogLevelFromEnv(t *testing.T) {
	t.Setenv("HNCRAWLER_LOG_LEVEL", "warn")
	assert.Equal(t, zerolog.WarnLevel, DefaultConfig().LogLevel)

	t.Setenv("HNCRAWLER_LOG_LEVEL", "loud")
	assert.Equal(t, zerolog.InfoLevel, DefaultConfig().LogLevel)
}

func TestSetLogLevel(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.SetLogLevel(""))
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel, "empty keeps the default")

	require.NoError(t, cfg.SetLogLevel("debug"))
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)

	assert.Error(t, cfg.SetLogLevel("chatty"))
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestListenAddr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.ListenAddr())

	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = 9000
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("HNCRAWLER_TEST_STR", "value")
	t.Setenv("HNCRAWLER_TEST_INT", "42")
	t.Setenv("HNCRAWLER_TEST_BAD_INT", "forty")
	t.Setenv("HNCRAWLER_TEST_FLOAT", "0.25")
	t.Setenv("HNCRAWLER_TEST_LEVEL", "debug")

	assert.Equal(t, "value", GetEnvString("HNCRAWLER_TEST_STR", "default"))
	assert.Equal(t, "default", GetEnvString("HNCRAWLER_TEST_MISSING", "default"))
	assert.Equal(t, 42, GetEnvInt("HNCRAWLER_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("HNCRAWLER_TEST_BAD_INT", 1))
	assert.InDelta(t, 0.25, GetEnvFloat("HNCRAWLER_TEST_FLOAT", 0), 1e-9)
	assert.Equal(t, zerolog.DebugLevel, GetEnvLogLevel("HNCRAWLER_TEST_LEVEL", zerolog.InfoLevel))
	assert.Equal(t, zerolog.WarnLevel, GetEnvLogLevel("HNCRAWLER_TEST_MISSING", zerolog.WarnLevel))
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"45", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"soon", 7 * time.Second},
		{"x", 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("HNCRAWLER_TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, GetEnvDuration("HNCRAWLER_TEST_DURATION", 7*time.Second))
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("HNCRAWLER_DOTENV_TOP_N=12\nHNCRAWLER_DOTENV_KEEP=file\n"), 0o600))

	t.Setenv("HNCRAWLER_DOTENV_KEEP", "process")
	t.Setenv("HNCRAWLER_DOTENV_TOP_N", "")
	require.NoError(t, os.Unsetenv("HNCRAWLER_DOTENV_TOP_N"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))

	assert.Equal(t, 12, GetEnvInt("HNCRAWLER_DOTENV_TOP_N", 30))
	assert.Equal(t, "process", GetEnvString("HNCRAWLER_DOTENV_KEEP", ""))
}
