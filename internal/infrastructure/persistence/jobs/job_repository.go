// Package jobs provides the SQL-based sync job repository.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/jobs"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
)

// SQLJobRepository is the SQL-based implementation of the JobRepository.
type SQLJobRepository struct {
	db     database.Querier
	logger *logging.ChanneledLogger
}

// NewSQLJobRepository creates a new instance of the repository.
func NewSQLJobRepository(db database.Querier, logger *logging.ChanneledLogger) *SQLJobRepository {
	return &SQLJobRepository{db: db, logger: logger}
}

// Create saves a new job record.
func (r *SQLJobRepository) Create(ctx context.Context, j *jobs.Job) error {
	const query = `
		INSERT INTO sync_jobs (id, account_id, kind, status, processed, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, j.ID, j.AccountID, string(j.Kind), string(j.Status), j.Processed,
		nullIfEmpty(j.Error), database.FormatTime(j.StartedAt), database.NullTime(j.FinishedAt))
	if err != nil {
		r.logger.Database().Error("Job insert failed", "error", err.Error(), "id", j.ID)
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// Finish writes the terminal state of a job.
func (r *SQLJobRepository) Finish(ctx context.Context, j *jobs.Job) error {
	const query = `
		UPDATE sync_jobs SET status = ?, processed = ?, error = ?, finished_at = ?
		WHERE account_id = ? AND id = ?`

	_, err := r.db.ExecContext(ctx, query, string(j.Status), j.Processed, nullIfEmpty(j.Error),
		database.NullTime(j.FinishedAt), j.AccountID, j.ID)
	if err != nil {
		r.logger.Database().Error("Job update failed", "error", err.Error(), "id", j.ID)
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// FailRunning marks every job still running as failed with reason. It returns the number
// of jobs changed.
func (r *SQLJobRepository) FailRunning(ctx context.Context, reason string, finishedAt time.Time) (int64, error) {
	const query = `
		UPDATE sync_jobs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?`

	res, err := r.db.ExecContext(ctx, query, string(jobs.StatusFailed), reason,
		database.FormatTime(finishedAt), string(jobs.StatusRunning))
	if err != nil {
		r.logger.Database().Error("Job recovery failed", "error", err.Error())
		return 0, fmt.Errorf("failed to fail running jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// FindByID retrieves a job owned by accountID.
func (r *SQLJobRepository) FindByID(ctx context.Context, accountID, id string) (*jobs.Job, error) {
	const query = `
		SELECT id, account_id, kind, status, processed, error, started_at, finished_at
		FROM sync_jobs WHERE account_id = ? AND id = ?`

	var (
		j            jobs.Job
		kind, status string
		errText      sql.NullString
		startedAt    string
		finishedAt   sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, accountID, id).Scan(&j.ID, &j.AccountID, &kind, &status,
		&j.Processed, &errText, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Job lookup failed", "error", err.Error(), "id", id)
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	j.Kind = jobs.Kind(kind)
	j.Status = jobs.Status(status)
	j.Error = errText.String
	if j.StartedAt, err = database.ParseTime(startedAt); err != nil {
		return nil, err
	}
	if j.FinishedAt, err = database.ParseNullTime(finishedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
