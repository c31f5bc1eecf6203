// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/PerkCity/perkcity-go/internal/application/container"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/cleanup"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/database"
	"github.com/PerkCity/perkcity-go/internal/presentation/http/server"
	"github.com/PerkCity/perkcity-go/pkg/config"
)

// Initialize performs the complete startup sequence and blocks until the
// process receives a shutdown signal.
func Initialize() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found -- config defaults will be used")
	}
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	logger := newLogger()
	logger.Startup().Info("Starting perkcity-go")

	// Step 1: Open the database and apply schema
	db, err := database.Open(logger)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// Step 2: Create dependency injection container
	appContainer, err := container.NewContainer(logger, db)
	if err != nil {
		return fmt.Errorf("container initialization failed: %w", err)
	}
	logger.Startup().Info("Dependency injection container created")

	// Step 3: Start background maintenance worker
	cleanupWorker := cleanup.NewWorker(appContainer.CacheStore, appContainer.Registry, appContainer.CacheMonitor, logger)
	go cleanupWorker.Start(ctx)

	// Step 4: Start HTTP server
	httpServer := server.New(config.Port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port)

	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown")

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}

	if err := db.Close(); err != nil {
		logger.Shutdown().Error("Error closing database", "error", err.Error())
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

func newLogger() *logging.ChanneledLogger {
	cfg := logging.DefaultLoggerConfig()
	cfg.JSONFormat = config.LogFormat == "json"
	if level, err := logging.ParseLevel(config.LogLevel); err == nil {
		cfg.DefaultLevel = level
	}
	return logging.NewChanneledLogger(cfg)
}
