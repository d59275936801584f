package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetenv(t, "DB_DRIVER", "PORT", "DATABASE_URL", "DB_MAX_CONN_LIFETIME", "CORS_ALLOWED_ORIGINS",
		"SMTP_PORT", "NOTIFY_TIMEOUT_SEC", "REDIS_ADDR", "EVENT_LOCK_ENABLED")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Database.MaxConnLifetime)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, 30*time.Second, cfg.Email.NotifyTimeout())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("EVENT_LOCK_ENABLED", "true")
	t.Setenv("NOTIFY_TIMEOUT_SEC", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "*")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Database.SQLitePath)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Redis.EventLockEnabled)
	assert.Equal(t, 5*time.Second, cfg.Email.NotifyTimeout())
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		_, err := Load()
		assert.ErrorContains(t, err, "unsupported DB_DRIVER")
	})
	t.Run("lock without redis", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "sqlite")
		unsetenv(t, "REDIS_ADDR")
		t.Setenv("EVENT_LOCK_ENABLED", "true")
		_, err := Load()
		assert.ErrorContains(t, err, "EVENT_LOCK_ENABLED requires REDIS_ADDR")
	})
	t.Run("bad int", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "sqlite")
		t.Setenv("SMTP_PORT", "many")
		_, err := Load()
		assert.ErrorContains(t, err, "parse env")
	})
}
