// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Port             int
	DataDir          string
	StoreDriver      string
	SQLitePath       string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	LockMaxAttempts  int
	LockMinBackoff   time.Duration
	LockMaxBackoff   time.Duration
	LockTTL          time.Duration
	LogLevel         string
	Development      bool
	AllowedOrigins   []string
	DefaultWarehouse string

	// Background reconciliation
	ReconcileEnabled    bool
	ReconcileInterval   time.Duration
	ReconcileAutoRepair bool
}

// Load reads the environment. Missing or malformed values take defaults.
func Load() Config {
	return Config{
		Port:             getInt("PORT", 8080),
		DataDir:          getEnv("DATA_DIR", "./data"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverJSON)),
		SQLitePath:       getEnv("SQLITE_PATH", "stock.db"),
		RedisAddr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getInt("REDIS_DB", 0),
		LockMaxAttempts:  getInt("LOCK_MAX_ATTEMPTS", 20),
		LockMinBackoff:   getDuration("LOCK_MIN_BACKOFF", 5*time.Millisecond),
		LockMaxBackoff:   getDuration("LOCK_MAX_BACKOFF", 250*time.Millisecond),
		LockTTL:          getDuration("LOCK_TTL", 30*time.Second),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Development:      strings.EqualFold(getEnv("APP_ENV", "production"), "development"),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		DefaultWarehouse: getEnv("DEFAULT_WAREHOUSE", "main"),

		ReconcileEnabled:    getBool("RECONCILE_ENABLED", true),
		ReconcileInterval:   getDuration("RECONCILE_INTERVAL", time.Hour),
		ReconcileAutoRepair: getBool("RECONCILE_AUTO_REPAIR", false),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverJSON, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q (want json, sqlite or memory)", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DefaultWarehouse == "" {
		return fmt.Errorf("default warehouse must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
