package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, ":3001", cfg.Addr())
	assert.EqualValues(t, 10*1024*1024, cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.False(t, cfg.RequireRegistration)
	assert.NotEmpty(t, cfg.AllowedOrigins)
}

func TestConfigSanitize(t *testing.T) {
	cfg := Config{Port: " ", MaxMessageSize: -1, SendBufferSize: 0, MetricsLogInterval: -time.Second}.Sanitize()

	assert.Equal(t, "3001", cfg.Port)
	assert.EqualValues(t, defaultMaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaultSendBufferSize, cfg.SendBufferSize)
	assert.Zero(t, cfg.MetricsLogInterval)
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, ":8080", Config{Port: "8080"}.Addr())
	assert.Equal(t, "127.0.0.1:9000", Config{Port: "127.0.0.1:9000"}.Addr())
	assert.Equal(t, ":9000", Config{Port: ":9000"}.Addr())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, http://localhost:5173")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("SEND_BUFFER_SIZE", "not-a-number")
	t.Setenv("REQUIRE_REGISTRATION", "true")
	t.Setenv("METRICS_LOG_INTERVAL", "30")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := NewConfigFromEnv()

	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 2048, cfg.MaxMessageSize)
	assert.Equal(t, defaultSendBufferSize, cfg.SendBufferSize)
	assert.True(t, cfg.RequireRegistration)
	assert.Equal(t, 30*time.Second, cfg.MetricsLogInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestApplyEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "-5")
	t.Setenv("REQUIRE_REGISTRATION", "maybe")
	t.Setenv("METRICS_LOG_INTERVAL", "soon")

	cfg := ApplyEnv(DefaultConfig())

	assert.EqualValues(t, defaultMaxMessageSize, cfg.MaxMessageSize)
	assert.False(t, cfg.RequireRegistration)
	assert.Zero(t, cfg.MetricsLogInterval)
}

func TestParseConfigYAML(t *testing.T) {
	data := []byte(`
port: "9000"
allowed_origins:
  - https://chat.example.com
require_registration: true
metrics_log_interval: 60
log_format: json
`)

	cfg, err := ParseConfigYAML(data, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.RequireRegistration)
	assert.Equal(t, time.Minute, cfg.MetricsLogInterval)
	assert.Equal(t, "json", cfg.LogFormat)
	// Keys absent from the file keep their defaults.
	assert.EqualValues(t, defaultMaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_message_size: 4096\n"), 0o600))

	cfg, err := LoadConfigFile(path, DefaultConfig())
	require.NoError(t, err)
	assert.EqualValues(t, 4096, cfg.MaxMessageSize)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), DefaultConfig())
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [unclosed\n"), 0o600))
	_, err = LoadConfigFile(bad, DefaultConfig())
	assert.Error(t, err)
}
