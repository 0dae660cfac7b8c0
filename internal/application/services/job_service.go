package services

import (
	"context"
	"sync"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/jobs"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/repositories"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
)

// interruptedReason is recorded on jobs cut short by a process shutdown.
const interruptedReason = "interrupted by shutdown"

// Work is the body of a tracked job. It returns the number of items processed.
type Work func(ctx context.Context) (int, error)

// JobService records long-running work as sync jobs that callers poll.
type JobService struct {
	store   repositories.Store
	clock   clock.Clock
	logger  *logging.ChanneledLogger
	timeout time.Duration
	wg      sync.WaitGroup

	stopCtx context.Context
	stop    context.CancelFunc
}

// NewJobService creates a new job service
func NewJobService(store repositories.Store, clk clock.Clock, logger *logging.ChanneledLogger) *JobService {
	stopCtx, stop := context.WithCancel(context.Background())
	return &JobService{
		store:   store,
		clock:   clk,
		logger:  logger,
		timeout: config.JobTimeout,
		stopCtx: stopCtx,
		stop:    stop,
	}
}

// Start records a running job and executes work in the background. The returned job is the
// initial running snapshot.
func (s *JobService) Start(ctx context.Context, accountID string, kind jobs.Kind, work Work) (*jobs.Job, error) {
	job := &jobs.Job{
		ID:        security.GenerateULID(),
		AccountID: accountID,
		Kind:      kind,
		Status:    jobs.StatusRunning,
		StartedAt: s.clock.Now(),
	}
	if err := s.store.Jobs().Create(ctx, job); err != nil {
		return nil, err
	}
	snapshot := *job

	// the job outlives the request that started it, but not the job timeout or Shutdown
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	stopRun := context.AfterFunc(s.stopCtx, cancel)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer stopRun()
		s.run(runCtx, job, work)
	}()

	s.logger.System().Info("Job started", "accountId", accountID, "jobId", job.ID, "kind", kind)
	return &snapshot, nil
}

func (s *JobService) run(ctx context.Context, job *jobs.Job, work Work) {
	log := s.logger.WithAccount(logging.ChannelSystem, job.AccountID).With("jobId", job.ID, "kind", job.Kind)

	processed, err := work(ctx)
	finished := s.clock.Now()
	job.Processed = processed
	job.FinishedAt = &finished
	if err != nil {
		job.Status = jobs.StatusFailed
		job.Error = err.Error()
		if s.stopCtx.Err() != nil {
			job.Error = interruptedReason + ": " + job.Error
		}
		log.Error("Job failed", "error", job.Error, "processed", processed)
	} else {
		job.Status = jobs.StatusCompleted
	}

	// the terminal state is written even when ctx was cancelled
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.DBQueryTimeout)
	defer cancel()
	if err := s.store.Jobs().Finish(finishCtx, job); err != nil {
		log.Error("Failed to record job result", "error", err.Error())
		return
	}
	log.Info("Job finished", "status", job.Status, "processed", processed)
}

// StartReattribution runs ReattributeUnmatched as a tracked job.
func (s *JobService) StartReattribution(ctx context.Context, accountID string, attributionService *AttributionService) (*jobs.Job, error) {
	return s.Start(ctx, accountID, jobs.KindReattribute, func(ctx context.Context) (int, error) {
		result, err := attributionService.ReattributeUnmatched(ctx, accountID)
		if result == nil {
			return 0, err
		}
		return result.Checked, err
	})
}

// Get returns a job owned by the account.
func (s *JobService) Get(ctx context.Context, accountID, id string) (*jobs.Job, error) {
	job, err := s.store.Jobs().FindByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperror.NotFound("Job not found")
	}
	return job, nil
}

// Wait blocks until every started job has finished.
func (s *JobService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels running jobs and waits for them to record a terminal status, giving up
// when ctx ends.
func (s *JobService) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.System().Info("Background jobs stopped")
		return nil
	case <-ctx.Done():
		s.logger.System().Warn("Background jobs still running at shutdown deadline", "error", ctx.Err().Error())
		return ctx.Err()
	}
}

// FailInterrupted marks jobs left running by a previous process as failed. Call it before
// starting new jobs.
func (s *JobService) FailInterrupted(ctx context.Context) (int64, error) {
	n, err := s.store.Jobs().FailRunning(ctx, interruptedReason, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.System().Warn("Marked interrupted jobs as failed", "count", n)
	}
	return n, nil
}
