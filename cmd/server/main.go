/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, optional config file)
  2. Build the zap logger
  3. Open the configured store (memory, sqlite, postgres, firestore)
  4. Optionally seed demo data
  5. Start the low-stock watcher (store feed, or polling)
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional config file (yaml, json, toml, env). Environment
           variables override its values.

ENVIRONMENT:
  SERVER_PORT, CORS_ALLOWED_ORIGINS, STORE_DRIVER, SQLITE_PATH,
  DATABASE_URL, FIRESTORE_PROJECT_ID, FIRESTORE_CREDENTIALS_FILE,
  LOG_LEVEL, LOG_FORMAT, SEED_DEMO, LEDGER_POLL_INTERVAL

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the watcher, close the store
  4. Exit

EXAMPLES:
  # In-memory store with sample data
  STORE_DRIVER=memory SEED_DEMO=true ./server

  # Postgres
  STORE_DRIVER=postgres DATABASE_URL=postgres://localhost/stock ./server
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/stock-engine/api"
	"github.com/warp/stock-engine/config"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/logger"
	"github.com/warp/stock-engine/stock"
	"github.com/warp/stock-engine/stock/store"
	"github.com/warp/stock-engine/store/firestore"
	"github.com/warp/stock-engine/store/postgres"
	"github.com/warp/stock-engine/store/sqlite"
)

func main() {
	configFile := flag.String("config", "", "optional config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer closeStore()
	log.Info("store ready", zap.String("driver", cfg.Store.Driver))

	svc := inventory.NewService(st, log.Named("inventory"))

	if cfg.SeedDemo {
		if err := svc.LoadDemo(ctx); err != nil {
			log.Warn("demo data not loaded", zap.Error(err))
		}
	}

	// Low-stock watcher: use the store's own change feed when it has one.
	var sub stock.Subscriber
	if s, ok := st.(stock.Subscriber); ok {
		sub = s
	} else {
		sub = inventory.NewPoller(st, cfg.LedgerPollInterval, log.Named("poller"))
	}
	watcher := inventory.NewWatcher(sub, st, log.Named("watcher"))
	stopWatcher, err := watcher.Start(ctx)
	if err != nil {
		return err
	}
	defer stopWatcher()
	svc.OnCatalogChange(func(ctx context.Context) {
		if err := watcher.Refresh(ctx); err != nil {
			log.Warn("refresh low-stock view", zap.Error(err))
		}
	})

	handler := api.NewHandler(svc, log)
	router := api.NewRouter(handler, cfg.Server.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (inventory.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return store.NewMemory(), func() {}, nil

	case config.DriverSQLite:
		if cfg.Store.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
				return nil, nil, err
			}
		}
		s, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case config.DriverFirestore:
		s, err := firestore.New(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile, log.Named("firestore"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.Store.Driver)
}
