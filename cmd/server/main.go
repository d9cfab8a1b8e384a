/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the depreciation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load the YAML config
  2. Open the store (SQLite or PostgreSQL)
  3. Build the engine and API handler
  4. Start the scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (default: depreciation.yaml, optional)
  -port    HTTP server port, overrides the config
  -db      SQLite database path, overrides the config
           Use ":memory:" for in-memory database

ENVIRONMENT:
  DEPRECIATION_DB_DRIVER, DEPRECIATION_DB_PATH, DEPRECIATION_DB_DSN,
  DEPRECIATION_PORT override the config file. Flags override both.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (an in-flight run finishes)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/assets.db"

  # Run against PostgreSQL
  DEPRECIATION_DB_DRIVER=postgres DEPRECIATION_DB_DSN="host=localhost user=postgres dbname=assets sslmode=disable" ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - api/scheduler.go: Periodic runs
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/depreciation-engine/api"
	"github.com/warp/depreciation-engine/config"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
	"github.com/warp/depreciation-engine/store/postgres"
	"github.com/warp/depreciation-engine/store/sqlite"
)

// backend is an api.Backend that holds a connection.
type backend interface {
	api.Backend
	Close() error
}

func main() {
	// Flags
	configPath := flag.String("config", "depreciation.yaml", "YAML config file")
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
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = *dbPath
	}

	// Initialize store
	store, err := openStore(context.Background(), cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize engine
	rounding, _ := cfg.RoundingMode()
	loc, _ := cfg.Location()
	calc := depreciation.NewCalculator(rounding)
	calc.MinimumCent = cfg.Depreciation.MinimumCent
	engine := depreciation.NewEngine(store, calc)
	engine.Periods.Location = loc

	// Initialize handler
	handler := api.NewHandler(store, engine)
	handler.AssetFactory.Rounding = rounding
	handler.DefaultTenant = generic.TenantID(cfg.Depreciation.DefaultTenant)

	// Start scheduler
	scheduler := api.NewDepreciationScheduler(engine, store)
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Tenants = cfg.SchedulerTenants()
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d (%s store)", cfg.Server.Port, cfg.Database.Driver)
		log.Printf("Trigger: POST http://localhost:%d/api/depreciation/run", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (backend, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(cfg.DSN)
		if err != nil {
			return nil, err
		}
		store, err := postgres.NewStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
