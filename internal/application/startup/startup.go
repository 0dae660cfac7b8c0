// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/application/container"
	"github.com/AtRiskMedia/launchtrack-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence and blocks until shutdown
func Initialize() error {
	start := time.Now().UTC()
	setupGin()

	logger, err := NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Open database and ensure schema
	phaseStart := time.Now()
	db, err := OpenDatabase(ctx, logger)
	if err != nil {
		logger.LogStartupPhase("database", time.Since(phaseStart), false, map[string]any{"driver": config.DatabaseDriver})
		return err
	}
	defer db.Close()
	logger.LogStartupPhase("database", time.Since(phaseStart), true, map[string]any{"driver": config.DatabaseDriver})

	// Step 2: Create dependency injection container
	phaseStart = time.Now()
	appContainer, err := container.NewContainer(ctx, db, logger, container.Options{})
	if err != nil {
		logger.LogStartupPhase("container", time.Since(phaseStart), false, nil)
		return fmt.Errorf("failed to build container: %w", err)
	}
	logger.LogStartupPhase("container", time.Since(phaseStart), true, map[string]any{"cacheBackend": config.CacheBackend})

	// Jobs still marked running belong to a process that is gone
	recoverCtx, cancelRecover := context.WithTimeout(ctx, config.DBQueryTimeout)
	_, err = appContainer.JobService.FailInterrupted(recoverCtx)
	cancelRecover()
	if err != nil {
		appContainer.Close()
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}

	// Step 3: Start background workers
	go appContainer.SchedulerService.Start(ctx)
	if appContainer.CleanupWorker != nil {
		go appContainer.CleanupWorker.Start(ctx)
	}
	logger.Startup().Info("Background workers started", "schedulerInterval", config.SchedulerInterval)

	// Step 4: Start HTTP server
	httpServer := server.New(config.Port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete", "totalDuration", time.Since(start), "port", config.Port)

	// Wait for shutdown signal or a fatal server error
	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			cancelBackgroundTasks()
			appContainer.Close()
			return err
		}
	}

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Running jobs are cancelled and record a failed status before the database closes
	if err := appContainer.JobService.Shutdown(shutdownCtx); err != nil {
		logger.Shutdown().Error("Background jobs did not stop in time", "error", err.Error())
	}

	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing container", "error", err.Error())
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

func setupGin() {
	if config.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
}
