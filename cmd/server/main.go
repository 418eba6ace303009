package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rainfall-archive/internal/config"
	"rainfall-archive/internal/handlers"
	"rainfall-archive/internal/repository"
	"rainfall-archive/internal/scheduler"
	"rainfall-archive/internal/services"
	"rainfall-archive/pkg/database"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	layout, err := cfg.Layout()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid column layout: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("rainfall-api", version, logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting rainfall archive API server", logging.Fields{
		"version":         version,
		"server_host":     cfg.Server.Host,
		"server_port":     cfg.Server.Port,
		"data_dir":        cfg.Rainfall.DataDir,
		"archive_backend": cfg.Rainfall.ArchiveBackend,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("rainfall_archive")

	// Initialize archive repository
	archiveRepo, closeArchive := openArchive(ctx, cfg, logger, metricsCollector)
	defer closeArchive()

	// Initialize services
	loader := services.NewIngestionService(layout, logger, metricsCollector)
	datasetService := services.NewDatasetService(loader, logger, metricsCollector)
	archiveService := services.NewArchiveService(archiveRepo, logger, metricsCollector)
	statsService := services.NewStatisticsService(archiveRepo, logger, metricsCollector)

	// Initialize handlers
	rainfallHandler := handlers.NewRainfallHandler(datasetService, archiveService, statsService, cfg.Rainfall.DataDir, logger, metricsCollector)
	router := handlers.NewRouter(rainfallHandler, promhttp.Handler())

	// Start archive snapshots
	snapshots := scheduler.New(datasetService, archiveService, cfg.Rainfall.SnapshotInterval, logger)
	if err := snapshots.Start(); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to schedule archive snapshots", logging.Fields{}, err)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	// Stop the scheduler, then write whatever changed since the last snapshot
	snapshots.Stop()
	if written := snapshots.RunOnce(shutdownCtx); written > 0 {
		logger.Info(ctx, "[SHUTDOWN_SNAPSHOT] Changed datasets archived", logging.Fields{
			"datasets": written,
		})
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}

// openArchive builds the configured archive backend. The returned func
// releases its resources.
func openArchive(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (repository.ArchiveRepository, func()) {
	switch cfg.Rainfall.ArchiveBackend {
	case config.BackendSQLite:
		db, err := database.NewSQLiteDB(cfg.Rainfall.ArchivePath, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open sqlite archive", logging.Fields{
				"path": cfg.Rainfall.ArchivePath,
			}, err)
		}
		archive := repository.NewSQLArchive(db, logger, metricsCollector)
		if err := archive.EnsureSchema(ctx); err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to create archive schema", logging.Fields{}, err)
		}
		return archive, func() { db.Close() }

	case config.BackendPostgres:
		dbConfig := &database.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}

		db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{
				"db_host": cfg.Database.Host,
				"db_name": cfg.Database.Database,
			}, err)
		}
		return repository.NewSQLArchive(db, logger, metricsCollector), func() { db.Close() }

	default:
		return repository.NewFileArchive(cfg.Rainfall.ArchivePath, logger, metricsCollector), func() {}
	}
}
