package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_DIR", "STORE_DRIVER", "REDIS_ADDR", "LOCK_MAX_ATTEMPTS",
		"LOCK_MIN_BACKOFF", "LOCK_MAX_BACKOFF", "APP_ENV", "ALLOWED_ORIGINS", "DEFAULT_WAREHOUSE",
		"RECONCILE_ENABLED", "RECONCILE_INTERVAL", "RECONCILE_AUTO_REPAIR"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, DriverJSON, cfg.StoreDriver)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 20, cfg.LockMaxAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.LockMinBackoff)
	assert.Equal(t, 250*time.Millisecond, cfg.LockMaxBackoff)
	assert.False(t, cfg.Development)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, "main", cfg.DefaultWarehouse)
	assert.True(t, cfg.ReconcileEnabled)
	assert.Equal(t, time.Hour, cfg.ReconcileInterval)
	assert.False(t, cfg.ReconcileAutoRepair)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Address())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("LOCK_MAX_ATTEMPTS", "3")
	t.Setenv("LOCK_MIN_BACKOFF", "1ms")
	t.Setenv("APP_ENV", "Development")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("RECONCILE_ENABLED", "false")
	t.Setenv("RECONCILE_AUTO_REPAIR", "1")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 3, cfg.LockMaxAttempts)
	assert.Equal(t, time.Millisecond, cfg.LockMinBackoff)
	assert.True(t, cfg.Development)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.ReconcileEnabled)
	assert.True(t, cfg.ReconcileAutoRepair)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("LOCK_MAX_ATTEMPTS", "-4")
	t.Setenv("LOCK_TTL", "forever")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 20, cfg.LockMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	cfg := Load()
	cfg.StoreDriver = "postgres"
	assert.Error(t, cfg.Validate())
}
