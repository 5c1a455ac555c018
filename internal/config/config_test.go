package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "127.0.0.1", c.Server.Host)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, int64(5*1024*1024), c.Storage.QuotaBytes)
	assert.InDelta(t, 0.8, c.Storage.WarningThreshold, 1e-9)
	assert.Equal(t, 20, c.Archive.MaxGames)
	assert.Equal(t, time.Second, c.Timer.TickInterval)
	assert.Equal(t, "game.current", c.Game.StateKey)
	assert.Equal(t, time.Minute, c.Monitor.UsageCheckInterval)
	assert.NoError(t, c.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
archive:
  max_games: 5
storage:
  quota_bytes: 1024
log:
  level: debug
  modules:
    archive: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "127.0.0.1:9090", c.Server.Addr())
	assert.Equal(t, 5, c.Archive.MaxGames)
	assert.Equal(t, int64(1024), c.Storage.QuotaBytes)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "warn", c.Log.Modules["archive"])
	// 未覆盖的项保持默认值
	assert.Equal(t, "matchlog.", c.Storage.Namespace)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MATCHLOG_ARCHIVE_MAX_GAMES", "3")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Archive.MaxGames)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Archive.MaxGames = 0
	assert.Error(t, c.Validate())

	c = Default()
	c.Storage.WarningThreshold = 1.5
	assert.Error(t, c.Validate())

	c = Default()
	c.Storage.QuotaBytes = 0
	assert.Error(t, c.Validate())

	c = Default()
	c.Timer.TickInterval = 0
	assert.Error(t, c.Validate())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
