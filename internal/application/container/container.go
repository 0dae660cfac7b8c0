// Package container provides dependency injection for all singleton services
package container

import (
	"context"
	"fmt"

	"github.com/AtRiskMedia/launchtrack-go/internal/application/services"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/adapters"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/sqlstore"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Attribution and lifecycle services
	IdentityService    *services.IdentityService
	AttributionService *services.AttributionService
	LaunchService      *services.LaunchService
	MetricsService     *services.MetricsService
	SchedulerService   *services.SchedulerService
	JobService         *services.JobService

	// Infrastructure Dependencies
	DB            *database.DB
	Store         *sqlstore.Store
	Cache         interfaces.MetricsCache
	CleanupWorker *cleanup.Worker // nil when the cache backend expires entries itself
	Mailer        email.Service
	Clock         clock.Clock
	Logger        *logging.ChanneledLogger
	PerfTracker   *performance.Tracker

	closers []func() error
}

// Options overrides container defaults. Zero values fall back to process configuration.
type Options struct {
	Clock  clock.Clock
	Cache  interfaces.MetricsCache
	Mailer email.Service
}

// NewContainer creates and wires all singleton services on top of an open database
func NewContainer(ctx context.Context, db *database.DB, logger *logging.ChanneledLogger, opts Options) (*Container, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}

	c := &Container{
		DB:          db,
		Store:       sqlstore.New(db, logger),
		Clock:       clk,
		Logger:      logger,
		PerfTracker: performance.NewTracker(),
	}

	cache := opts.Cache
	if cache == nil {
		var err error
		if cache, err = c.newCache(ctx); err != nil {
			return nil, err
		}
	}
	c.Cache = cache
	if expiring, ok := cache.(interfaces.ExpiringCache); ok {
		c.CleanupWorker = cleanup.NewWorker(expiring, cleanup.NewConfig(), clk, logger)
	}

	c.Mailer = opts.Mailer
	if c.Mailer == nil {
		c.Mailer = email.NewService(logger)
	}

	c.IdentityService = services.NewIdentityService(c.Store, clk, logger, c.PerfTracker)
	c.AttributionService = services.NewAttributionService(c.Store, cache, clk, logger, c.PerfTracker)
	c.MetricsService = services.NewMetricsService(c.Store, cache, clk, logger, c.PerfTracker)
	c.LaunchService = services.NewLaunchService(c.Store, c.MetricsService, c.Mailer, cache, clk, logger, c.PerfTracker)
	c.SchedulerService = services.NewSchedulerService(c.Store, cache, clk, config.SchedulerInterval, logger, c.PerfTracker)
	c.JobService = services.NewJobService(c.Store, clk, logger)

	return c, nil
}

func (c *Container) newCache(ctx context.Context) (interfaces.MetricsCache, error) {
	switch config.CacheBackend {
	case "", "memory":
		c.Logger.Cache().Info("Using in-memory metrics cache")
		return stores.NewMetricsStore(c.Clock), nil
	case "redis":
		rc, err := adapters.NewRedisMetricsCache(ctx, config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect metrics cache: %w", err)
		}
		c.closers = append(c.closers, rc.Close)
		c.Logger.Cache().Info("Using redis metrics cache")
		return rc, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", config.CacheBackend)
	}
}

// Close stops background jobs within SHUTDOWN_TIMEOUT and releases cache connections.
// The database is owned by the caller.
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	firstErr := c.JobService.Shutdown(ctx)
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
