package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/deckbot/internal/database"
	srs "github.com/example/deckbot/internal/spaced_repetition"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, StorageSQL, cfg.Storage)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.True(t, cfg.EnableScheduler)
	assert.Equal(t, 4, cfg.Notifications.StartHour)
	assert.Equal(t, 18, cfg.Notifications.EndHour)
	assert.Equal(t, srs.DefaultRetryPolicy(), cfg.SRS.Retry)

	table, err := cfg.SRS.LevelTable()
	require.NoError(t, err)
	assert.Equal(t, srs.DefaultLevelTable(), table)
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"STORAGE_BACKEND":         "badger",
		"BADGER_PATH":             "/tmp/progress",
		"DB_TYPE":                 "postgres",
		"DATABASE_URL":            "postgres://localhost/deckbot",
		"HTTP_ADDR":               "",
		"TELEGRAM_BOT_TOKEN":      "123:abc",
		"ENABLE_SCHEDULER":        "false",
		"NOTIFICATION_START_HOUR": "7",
		"NOTIFICATION_END_HOUR":   "22",
		"LOG_LEVEL":               "debug",
		"LOG_FORMAT":              "json",
	}))
	require.NoError(t, err)

	assert.Equal(t, StorageBadger, cfg.Storage)
	assert.Equal(t, "/tmp/progress", cfg.Badger.Path)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/deckbot", cfg.Database.DSN)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "123:abc", cfg.TelegramToken)
	assert.False(t, cfg.EnableScheduler)
	assert.Equal(t, NotificationWindow{StartHour: 7, EndHour: 22}, cfg.Notifications)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
}

func TestInvalidEnv(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown backend":   {"STORAGE_BACKEND": "redis"},
		"unknown db":        {"DB_TYPE": "oracle"},
		"postgres no dsn":   {"DB_TYPE": "postgres"},
		"hour not a number": {"NOTIFICATION_START_HOUR": "six"},
		"hour out of range": {"NOTIFICATION_END_HOUR": "24"},
		"window inverted":   {"NOTIFICATION_START_HOUR": "20", "NOTIFICATION_END_HOUR": "8"},
		"log level":         {"LOG_LEVEL": "loud"},
		"missing srs file":  {"SRS_CONFIG": "/nonexistent/srs.yaml"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(env(vars))
			assert.Error(t, err)
		})
	}
}

func TestSRSFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
intervals: [0s, 1h, 2h, 4h, 8h, 16h, 32h, 64h, 128h]
retry:
  max_attempts: 3
  base_delay: 10ms
`), 0o600))

	cfg, err := FromEnv(env(map[string]string{"SRS_CONFIG": path}))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.SRS.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.SRS.Retry.BaseDelay)
	// untouched fields keep their defaults
	assert.Equal(t, srs.DefaultRetryPolicy().MaxDelay, cfg.SRS.Retry.MaxDelay)

	table, err := cfg.SRS.LevelTable()
	require.NoError(t, err)
	d, err := table.IntervalFor(8)
	require.NoError(t, err)
	assert.Equal(t, 128*time.Hour, d)
}

func TestSRSFileRejectsShortTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intervals: [0s, 1h]\n"), 0o600))

	_, err := FromEnv(env(map[string]string{"SRS_CONFIG": path}))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "deck", "d1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"deck":"d1"`)
}
