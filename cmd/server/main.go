/*
main.go - Application entry point

PURPOSE:
  Starts the package ledger server: loads configuration, opens the store,
  wires catalog, ledger service, HTTP API and audit scheduler, and shuts
  everything down gracefully.

STARTUP SEQUENCE:
  1. Parse command-line flags and load config (file, .env, SALON_* env)
  2. Build the zap logger
  3. Open the store selected by database.driver
  4. Create catalog, directory and ledger service
  5. Start the audit scheduler
  6. Serve HTTP until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  Config file (default: ./config.yaml if present)
  -port    HTTP port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the audit scheduler
  4. Close database connection

EXAMPLES:
  ./server -db="./data/ledger.db"
  SALON_DATABASE_DRIVER=postgres SALON_DATABASE_DSN="host=db user=salon dbname=ledger" ./server
  ./server -config=./deploy/indiranagar.yaml -port=3000

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/package-ledger/api"
	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/config"
	"github.com/warp/package-ledger/ledger"
	"github.com/warp/package-ledger/store/gormstore"
	"github.com/warp/package-ledger/store/memory"
	"github.com/warp/package-ledger/store/sqlite"
)

// backend is what every store driver provides to the server.
type backend interface {
	ledger.TxStore
	catalog.TemplateStore
	api.Pinger
	Close() error
}

type memoryBackend struct{ *memory.Memory }

func (memoryBackend) Ping(context.Context) error { return nil }
func (memoryBackend) Close() error               { return nil }

func openStore(cfg config.DatabaseConfig) (backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memoryBackend{memory.New()}, nil
	case config.DriverSQLite:
		return sqlite.New(cfg.Path)
	case config.DriverPostgres:
		return gormstore.OpenPostgres(cfg.DSN)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func main() {
	// Flags
	configPath := flag.String("config", "", "Config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = *dbPath
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := openStore(cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close()

	// Catalog and ledger
	dir := cfg.Directory()
	cat := catalog.New(store, logger.Named("catalog"))
	unsubscribe := cat.Subscribe(func(ev catalog.ChangeEvent) {
		logger.Info("template changed",
			zap.String("change", string(ev.Type)),
			zap.String("template_id", string(ev.Template.ID)),
			zap.String("name", ev.Template.DisplayName()))
	})
	defer unsubscribe()

	service := ledger.NewService(store, cat, ledger.Options{
		Services:    dir,
		Staff:       dir,
		Outlets:     dir,
		MaxAttempts: cfg.Ledger.MaxRedeemAttempts,
		Logger:      logger.Named("ledger"),
	})

	handler := api.NewHandler(service, cat, logger.Named("api"))
	handler.Health = store

	if cfg.Audit.Enabled {
		scheduler := api.NewAuditScheduler(service.Auditor, cfg.Audit.Schedule, logger.Named("audit"))
		if err := scheduler.Start(); err != nil {
			logger.Fatal("invalid audit schedule", zap.String("schedule", cfg.Audit.Schedule), zap.Error(err))
		}
		defer scheduler.Stop()
		handler.Audits = scheduler
	}

	router := api.NewRouter(handler, cfg.Server.AllowedOrigins...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}
