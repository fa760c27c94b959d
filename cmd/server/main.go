/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present), environment, then command-line flags
  2. Build logger and Prometheus registry
  3. Open the store (json files, SQLite or memory)
  4. Pick a locker (Redis when REDIS_ADDR is set, in-process otherwise)
  5. Create inventory service, API handler and router
  6. Start background reconciliation
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port    HTTP server port
  -data    Data directory for the json store
  -store   Store driver: json, sqlite, memory
  -db      SQLite database path (":memory:" for in-memory)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reconciliation scheduler
  4. Close store and Redis connections
  5. Exit

EXAMPLES:
  # Flat JSON files under ./data (default)
  ./server

  # SQLite, shared locks through Redis
  STORE_DRIVER=sqlite REDIS_ADDR=localhost:6379 ./server -db=./stock.db

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/warp/stock-ledger/api"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/inventory"
	memstore "github.com/warp/stock-ledger/inventory/store"
	"github.com/warp/stock-ledger/lock"
	"github.com/warp/stock-ledger/store/jsonfile"
	"github.com/warp/stock-ledger/store/sqlite"
	"github.com/warp/stock-ledger/telemetry"
)

func main() {
	// A missing .env is normal outside development
	_ = godotenv.Load()
	cfg := config.Load()

	// Flags
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory for the json store")
	flag.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "Store driver: json, sqlite, memory")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	flag.Parse()

	logger := telemetry.NewLogger("stock-ledger", cfg.LogLevel, cfg.Development)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	// Initialize store
	store, closeStore, err := openStore(cfg, metrics.CorruptionHook(logger))
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer closeStore.Close()

	locker, closeLocker := newLocker(cfg, logger, metrics)
	defer closeLocker.Close()

	inv := inventory.New(inventory.Options{
		Store:            store,
		Locker:           locker,
		Logger:           &logger,
		Observer:         metrics,
		DefaultWarehouse: inventory.WarehouseID(cfg.DefaultWarehouse),
	})

	// Background reconciliation
	scheduler := api.NewReconciliationScheduler(inv, logger)
	scheduler.Enabled = cfg.ReconcileEnabled
	scheduler.CheckInterval = cfg.ReconcileInterval
	scheduler.AutoRepair = cfg.ReconcileAutoRepair
	scheduler.OnResult = metrics.Reconciled

	handler := api.NewHandler(inv, logger)
	handler.Scheduler = scheduler

	// Create router
	router := api.NewRouter(handler, cfg.AllowedOrigins, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Create server
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("store", cfg.StoreDriver).
			Bool("redis_locks", cfg.RedisAddr != "").
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	scheduler.Stop()

	logger.Info().Msg("server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(cfg config.Config, onCorrupt inventory.CorruptionHook) (inventory.Store, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s.OnCorrupt = onCorrupt
		return s, s, nil
	case config.DriverMemory:
		s := memstore.NewMemory()
		s.OnCorrupt = onCorrupt
		return s, nopCloser{}, nil
	default:
		s, err := jsonfile.New(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		s.OnCorrupt = onCorrupt
		return s, nopCloser{}, nil
	}
}

func newLocker(cfg config.Config, logger zerolog.Logger, metrics *telemetry.Metrics) (inventory.Locker, io.Closer) {
	policy := lock.Policy{
		MaxAttempts: cfg.LockMaxAttempts,
		MinBackoff:  cfg.LockMinBackoff,
		MaxBackoff:  cfg.LockMaxBackoff,
	}

	if cfg.RedisAddr == "" {
		l := lock.NewLocal(policy)
		l.OnTimeout = metrics.LockTimeoutHook()
		return l, nopCloser{}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
	}

	l := lock.NewRedis(rdb, lock.RedisOptions{
		Policy: policy,
		TTL:    cfg.LockTTL,
		Logger: logger,
	})
	l.OnTimeout = metrics.LockTimeoutHook()
	return l, rdb
}
