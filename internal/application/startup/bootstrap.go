package startup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	schema "github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
)

// NewLogger builds the channeled logger from process configuration.
func NewLogger() (*logging.ChanneledLogger, error) {
	cfg := logging.DefaultLoggerConfig()
	cfg.DefaultLevel = logging.ParseLevel(config.LogLevel)
	cfg.JSONFormat = config.LogJSON
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	logger, err := logging.NewChanneledLogger(cfg)
	if err != nil {
		return nil, err
	}
	if err := logger.ApplyChannelLevels(config.LogChannelLevels); err != nil {
		logger.Close()
		return nil, fmt.Errorf("invalid LOG_CHANNEL_LEVELS: %w", err)
	}
	logger.Startup().Debug("Log channel levels", "levels", logger.GetChannelLevels())
	return logger, nil
}

// OpenDatabase connects with the configured driver and ensures the schema exists.
func OpenDatabase(ctx context.Context, logger *logging.ChanneledLogger) (*database.DB, error) {
	opts := database.OptionsFromConfig()
	switch opts.Driver {
	case database.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	case database.DriverLibSQL:
		if err := database.TestTursoConnectionWithLogger(ctx, opts.TursoURL, opts.TursoAuthToken, logger); err != nil {
			return nil, fmt.Errorf("turso connection check failed: %w", err)
		}
	}

	db, err := database.Open(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := schema.NewTableCreator().CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}
