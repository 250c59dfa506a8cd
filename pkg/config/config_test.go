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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: console\n"))
	require.NoError(t, err)

	assert.Equal(t, "console", cfg.App.Name)
	assert.Equal(t, "admin_", cfg.Storage.Prefix)
	assert.Equal(t, 300, cfg.Session.RefreshLead)
	assert.Equal(t, 60, cfg.Session.RefreshFloor)
	assert.Equal(t, 30*time.Second, cfg.API.TimeoutDuration())
	assert.Equal(t, 100*time.Millisecond, cfg.Navigation.RetryDelay())
}

func TestLoadResolvesEnvPlaceholders(t *testing.T) {
	t.Setenv("CONSOLE_TEST_SECRET", "s3cret")
	cfg, err := Load(writeConfig(t, `
api:
  baseURL: http://example.test/api
  clientSecret: ${CONSOLE_TEST_SECRET}
storage:
  driver: redis
  redis:
    host: 10.0.0.1
    port: 6380
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.API.ClientSecret)
	assert.Equal(t, "http://example.test/api", cfg.API.BaseURL)
	assert.Equal(t, "10.0.0.1:6380", cfg.Storage.Redis.Addr())
}

func TestDatabaseDSN(t *testing.T) {
	assert.Equal(t, ":memory:", (&DatabaseConfig{Driver: "sqlite"}).DSN())
	assert.Equal(t, "./x.db", (&DatabaseConfig{Driver: "sqlite", Database: "./x.db"}).DSN())
	assert.Contains(t, (&DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432}).DSN(), "host=db port=5432")
	assert.Empty(t, (&DatabaseConfig{Driver: "oracle"}).DSN())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
