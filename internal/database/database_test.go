package database

import (
	"path/filepath"
	"testing"

	"github.com/dneimke/simple-coding-sub000/internal/config"
	"github.com/dneimke/simple-coding-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func TestOpenAndMigrateSQLiteFile(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "matchlog.db")
	db, err := Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, IsConnected(db))

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable(&models.KVEntry{}))

	// 迁移可重复执行
	require.NoError(t, Migrate(db))

	require.NoError(t, DropAllTables(db))
	assert.False(t, db.Migrator().HasTable(&models.KVEntry{}))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, parseLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, parseLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, parseLogLevel(""))
}

func TestMigrateNilDB(t *testing.T) {
	assert.Error(t, Migrate(nil))
}
