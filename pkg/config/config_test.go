package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendPlaywright, cfg.Browser.Backend)
	assert.Equal(t, 5, cfg.Sessions.MaxConcurrentSessions)
	assert.Equal(t, 300000, cfg.Sessions.SessionTimeoutMS)
	assert.Equal(t, 20, cfg.Sessions.MaxRequestsPerSession)
	assert.Equal(t, 60000, cfg.Sessions.IdleReaperIntervalMS)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Retry.BaseDelayMS)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Equal(t, 5*time.Minute, cfg.Sessions.SessionTimeout())
	assert.Equal(t, time.Minute, cfg.Sessions.IdleReaperInterval())
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay())
}

func TestLoadAppliesDefaultsToUnsetFields(t *testing.T) {
	path := writeConfig(t, `
sessions:
  max_concurrent_sessions: 10
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Sessions.MaxConcurrentSessions)
	assert.Equal(t, 300000, cfg.Sessions.SessionTimeoutMS)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, BackendPlaywright, cfg.Browser.Backend)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("PAGEPOOL_PORT", "9090")
	path := writeConfig(t, `
server:
  port: ${PAGEPOOL_PORT}
browser:
  backend: mock
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendMock, cfg.Browser.Backend)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
browser:
  backend: selenium
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selenium")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	cfg := Default()
	cfg.Sessions.MaxConcurrentSessions = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Sessions.MaxRequestsPerSession = -5
	assert.Error(t, cfg.Validate())
}
