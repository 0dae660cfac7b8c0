// Package database provides the core functionality for creating and managing
// database connections in a clean, isolated manner.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

const (
	DriverSQLite = "sqlite3"
	DriverLibSQL = "libsql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so repositories can run inside or
// outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	Driver string
}

// Options selects the driver and pool settings for a connection.
type Options struct {
	Driver          string
	Path            string
	TursoURL        string
	TursoAuthToken  string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OptionsFromConfig builds Options from the process configuration.
func OptionsFromConfig() Options {
	return Options{
		Driver:          config.DatabaseDriver,
		Path:            config.DatabasePath,
		TursoURL:        config.TursoDatabaseURL,
		TursoAuthToken:  config.TursoAuthToken,
		MaxOpenConns:    config.DBMaxOpenConns,
		MaxIdleConns:    config.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute,
	}
}

// DataSourceName returns the driver-specific connection string.
func (o Options) DataSourceName() (string, error) {
	switch o.Driver {
	case DriverSQLite:
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", o.Path), nil
	case DriverLibSQL:
		if o.TursoURL == "" {
			return "", fmt.Errorf("libsql driver requires TURSO_DATABASE_URL")
		}
		return fmt.Sprintf("%s?authToken=%s", o.TursoURL, o.TursoAuthToken), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", o.Driver)
	}
}

// NewConnection establishes a new database connection for the specified driver.
func NewConnection(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, Driver: driverName}, nil
}

// Open establishes a pooled connection from Options with logging.
func Open(opts Options, logger *logging.ChanneledLogger) (*DB, error) {
	dsn, err := opts.DataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := NewConnectionWithLogger(opts.Driver, dsn, logger)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return db, nil
}

// NewConnectionWithLogger establishes a new database connection for the specified driver with logging.
func NewConnectionWithLogger(driverName, dataSourceName string, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", driverName)

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DBQueryTimeout)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		logger.Database().Error("Database ping failed", "error", err.Error(), "driverName", driverName)
		db.Close()
		return nil, err
	}

	duration := time.Since(start)
	logger.Database().Info("Database connection established", "driverName", driverName, "duration", duration)
	if duration > GetSlowQueryThreshold() {
		logger.LogSlowQuery("DATABASE_CONNECTION", duration, "system")
	}

	return &DB{DB: db, Driver: driverName}, nil
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithTimeout bounds a storage call by DB_QUERY_TIMEOUT.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, config.DBQueryTimeout)
}
