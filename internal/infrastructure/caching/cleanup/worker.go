// Package cleanup provides the background cache cleanup worker
package cleanup

import (
	"context"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
)

// Worker purges expired in-memory cache entries on an interval
type Worker struct {
	cache  interfaces.ExpiringCache
	config *Config
	clock  clock.Clock
	logger *logging.ChanneledLogger
}

// NewWorker creates a new cleanup worker with injected configuration
func NewWorker(cache interfaces.ExpiringCache, config *Config, clk clock.Clock, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		cache:  cache,
		config: config,
		clock:  clk,
		logger: logger,
	}
}

// Start begins the cleanup worker routine, using the configured interval. It returns when
// ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	w.logger.Cache().Info("Cache cleanup worker started",
		"interval", w.config.CleanupInterval, "verbose", w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			w.logger.Cache().Info("Cache cleanup worker stopping")
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce performs a single purge pass and returns the number of entries removed.
func (w *Worker) RunOnce() int {
	start := time.Now()
	removed := w.cache.PurgeExpired(w.clock.Now())
	duration := time.Since(start)

	if removed > 0 {
		w.logger.Cache().Info("Cache cleanup finished", "removed", removed, "duration", duration)
	} else if w.config.VerboseReporting {
		stats := w.cache.Stats()
		w.logger.Cache().Debug("Cache cleanup completed - no expired entries",
			"accounts", stats.Accounts, "entries", stats.Entries, "duration", duration)
	}
	return removed
}
