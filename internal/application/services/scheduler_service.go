package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/launch"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/repositories"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
)

// TickResult reports the transitions applied by one scheduler pass.
type TickResult struct {
	Activated int                   `json:"activated"`
	Completed int                   `json:"completed"`
	Changes   []launch.StatusChange `json:"-"`
}

// SchedulerService advances launch statuses as time passes. Every pass is a pair of set-based
// updates, so running it repeatedly is harmless.
type SchedulerService struct {
	store       repositories.Store
	cache       interfaces.MetricsCache
	clock       clock.Clock
	interval    time.Duration
	tickTimeout time.Duration
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewSchedulerService creates a scheduler ticking every interval once started
func NewSchedulerService(store repositories.Store, cache interfaces.MetricsCache, clk clock.Clock, interval time.Duration, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SchedulerService {
	return &SchedulerService{
		store:       store,
		cache:       cache,
		clock:       clk,
		interval:    interval,
		tickTimeout: config.DBQueryTimeout,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// Tick moves due upcoming launches to active, then ended active launches to completed.
// Archived launches are never selected.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	activated, err := s.store.Launches().AdvanceToActive(ctx, now)
	if err != nil {
		return nil, err
	}
	completed, err := s.store.Launches().AdvanceToCompleted(ctx, now)
	if err != nil {
		return &TickResult{Activated: len(activated), Changes: activated}, err
	}

	result := &TickResult{
		Activated: len(activated),
		Completed: len(completed),
		Changes:   append(activated, completed...),
	}

	accounts := make(map[string]bool)
	for _, c := range result.Changes {
		s.logger.Scheduler().Info("Launch status advanced", "accountId", c.AccountID, "launchId", c.LaunchID, "title", c.Title, "to", c.To)
		accounts[c.AccountID] = true
	}
	for accountID := range accounts {
		invalidateAccount(ctx, s.cache, s.logger, accountID)
	}
	return result, nil
}

// RunOnce performs a tick at the current time and logs instead of returning failures.
func (s *SchedulerService) RunOnce(ctx context.Context) *TickResult {
	start := time.Now()
	result, err := s.runTick(ctx)
	if err != nil {
		s.perfTracker.RecordSchedulerTick(0, 0, err)
		s.logger.LogError(logging.ChannelScheduler, "tick", err, "", nil)
		return result
	}
	s.perfTracker.RecordSchedulerTick(result.Activated, result.Completed, nil)
	if result.Activated > 0 || result.Completed > 0 {
		s.logger.Scheduler().Info("Scheduler tick applied transitions",
			"activated", result.Activated, "completed", result.Completed, "duration", time.Since(start))
	} else {
		s.logger.Scheduler().Debug("Scheduler tick - nothing to advance", "duration", time.Since(start))
	}
	return result
}

// runTick bounds one pass by the storage timeout and turns a panic into an error so the
// loop survives it.
func (s *SchedulerService) runTick(ctx context.Context) (result *TickResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Scheduler().Error("Scheduler tick panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("scheduler tick panicked: %v", r)
		}
	}()

	tickCtx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()
	return s.Tick(tickCtx, s.clock.Now())
}

// Start runs one tick immediately and then one per interval until ctx is cancelled.
func (s *SchedulerService) Start(ctx context.Context) {
	s.logger.Scheduler().Info("Launch status scheduler started", "interval", s.interval)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Scheduler().Info("Launch status scheduler stopping")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
