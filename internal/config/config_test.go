package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanun0323/eventsocket/pkg/auth"
	"github.com/yanun0323/eventsocket/pkg/websocket"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eventsocket.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileWithDefaults(t *testing.T) {
	path := writeConfig(t, `
endpoint: wss://abc.appsync-realtime-api.us-east-1.amazonaws.com/event/realtime
auth:
  api_key: da2-key
client:
  event_overflow: drop_newest
  close_timeout: 2s
recorder:
  enabled: true
  dsn: postgres://localhost/events
`)
	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, AuthModeAPIKey, cfg.Auth.Mode)
	assert.Equal(t, 2*time.Second, cfg.Client.CloseTimeout)
	assert.Equal(t, websocket.DefaultEventQueueSize, cfg.Client.EventQueueSize)
	assert.Equal(t, 256, cfg.Recorder.BatchSize)

	opt := cfg.ClientOption()
	assert.Equal(t, websocket.OverflowDropNewest, opt.EventOverflow)
	assert.Equal(t, auth.APIKey{Key: "da2-key"}, opt.Authorizer)
	assert.Equal(t, time.Second, cfg.Recorder.WriterConfig().FlushInterval)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
endpoint: wss://file.example.com/event/realtime
auth:
  mode: bearer
  token: from-file
`)
	t.Setenv("EVENTSOCKET_AUTH_TOKEN", "from-env")
	t.Setenv("EVENTSOCKET_ENDPOINT", "wss://env.example.com/event/realtime")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.Token)
	assert.Equal(t, "wss://env.example.com/event/realtime", cfg.Endpoint)
	assert.IsType(t, auth.Bearer{}, cfg.Authorizer())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithoutEndpointLeavesItToValidate(t *testing.T) {
	t.Setenv("EVENTSOCKET_ENDPOINT", "")
	path := writeConfig(t, `
recorder:
  dsn: postgres://localhost/events
`)
	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/events", cfg.Recorder.DSN)
	assert.ErrorContains(t, cfg.Validate(), "endpoint is empty")
}

func TestLoadRejectsUnknownAuthMode(t *testing.T) {
	path := writeConfig(t, `
auth:
  mode: iam
`)
	_, err := Load(viper.New(), path)
	assert.ErrorContains(t, err, "unknown auth.mode")
}

func TestValidate(t *testing.T) {
	base := Config{Endpoint: "wss://example.com/event/realtime", Auth: AuthConfig{Mode: AuthModeNone}}
	require.NoError(t, base.Validate())
	assert.Nil(t, base.Authorizer())

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no endpoint", func(c *Config) { c.Endpoint = "" }},
		{"api key missing", func(c *Config) { c.Auth.Mode = AuthModeAPIKey }},
		{"token missing", func(c *Config) { c.Auth.Mode = AuthModeBearer }},
		{"unknown mode", func(c *Config) { c.Auth.Mode = "iam" }},
		{"unknown overflow", func(c *Config) { c.Client.EventOverflow = "spill" }},
		{"recorder without dsn", func(c *Config) { c.Recorder.Enabled = true }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
