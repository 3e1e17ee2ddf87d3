// ABOUTME: Tests for configuration loading, env expansion and validation.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messenger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	t.Setenv("TEST_MESSENGER_TOKEN", "tok-from-env")

	path := writeConfig(t, `
backend:
  base_url: https://api.homeline.test
  request_timeout: 5s
socket:
  url: wss://live.homeline.test/ws
  max_reconnect_attempts: 8
  handshake_timeout: 3s
  reconnect_base_delay: 250ms
  reconnect_max_delay: 10s
session:
  token: ${TEST_MESSENGER_TOKEN}
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.homeline.test", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, "wss://live.homeline.test/ws", cfg.Socket.URL)
	assert.Equal(t, 8, cfg.Socket.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Socket.ReconnectBaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Socket.ReconnectMaxDelay)
	assert.Equal(t, "tok-from-env", cfg.Session.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingBackendURL(t *testing.T) {
	path := writeConfig(t, `
socket:
  url: wss://live.homeline.test/ws
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.base_url")
}

func TestLoad_MissingSocketURL(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: https://api.homeline.test
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket.url")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: https://api.homeline.test
  request_timeout: soon
socket:
  url: wss://live.homeline.test/ws
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_timeout")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: https://api.homeline.test
socket:
  url: wss://live.homeline.test/ws
session:
  token: ${DEFINITELY_NOT_SET_ANYWHERE}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Session.Token)
}
