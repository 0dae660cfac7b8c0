// Package identity provides the concrete SQL-based implementations of
// the identity store repositories (Visitor, Session).
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
)

const visitorColumns = `id, account_id, visitor_token, email, fingerprint, first_source, first_medium,
		first_campaign, first_content, first_term, first_referrer, first_landing_page,
		first_touch_at, created_at`

// SQLVisitorRepository is the SQL-based implementation of the VisitorRepository.
type SQLVisitorRepository struct {
	db     database.Querier
	logger *logging.ChanneledLogger
}

// NewSQLVisitorRepository creates a new instance of the repository.
func NewSQLVisitorRepository(db database.Querier, logger *logging.ChanneledLogger) *SQLVisitorRepository {
	return &SQLVisitorRepository{db: db, logger: logger}
}

// FindByToken retrieves a visitor by its public token.
func (r *SQLVisitorRepository) FindByToken(ctx context.Context, accountID, token string) (*attribution.Visitor, error) {
	query := `SELECT ` + visitorColumns + ` FROM visitors WHERE account_id = ? AND visitor_token = ?`
	return r.findOne(ctx, "find_by_token", query, accountID, accountID, token)
}

// FindByEmail retrieves the most recently created visitor with that email.
func (r *SQLVisitorRepository) FindByEmail(ctx context.Context, accountID, email string) (*attribution.Visitor, error) {
	query := `SELECT ` + visitorColumns + ` FROM visitors
		WHERE account_id = ? AND email = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	return r.findOne(ctx, "find_by_email", query, accountID, accountID, attribution.NormalizeEmail(email))
}

// FindByFingerprint retrieves the most recently created visitor with that fingerprint
// created at or after since.
func (r *SQLVisitorRepository) FindByFingerprint(ctx context.Context, accountID, fingerprint string, since time.Time) (*attribution.Visitor, error) {
	if fingerprint == "" {
		return nil, nil
	}
	query := `SELECT ` + visitorColumns + ` FROM visitors
		WHERE account_id = ? AND fingerprint = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	return r.findOne(ctx, "find_by_fingerprint", query, accountID, accountID, fingerprint, database.FormatTime(since))
}

// CreateIfAbsent saves a new visitor with its immutable first-touch snapshot. It reports
// false, leaving the stored visitor untouched, when the token is already taken.
func (r *SQLVisitorRepository) CreateIfAbsent(ctx context.Context, v *attribution.Visitor) (bool, error) {
	const query = `
		INSERT INTO visitors (id, account_id, visitor_token, email, fingerprint, first_source,
			first_medium, first_campaign, first_content, first_term, first_referrer,
			first_landing_page, first_touch_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, visitor_token) DO NOTHING`

	start := time.Now()
	r.logger.Database().Debug("Executing visitor insert", "id", v.ID, "accountId", v.AccountID)

	ft := v.FirstTouch
	res, err := r.db.ExecContext(ctx, query,
		v.ID, v.AccountID, v.VisitorToken, database.NullString(v.Email), database.NullString(v.Fingerprint),
		ft.Source, ft.Medium, ft.Campaign, ft.Content, ft.Term, ft.Referrer, ft.LandingPage,
		database.FormatTime(ft.CapturedAt), database.FormatTime(v.CreatedAt),
	)
	if err != nil {
		r.logger.Database().Error("Visitor insert failed", "error", err.Error(), "id", v.ID)
		return false, fmt.Errorf("failed to insert visitor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Debug("Visitor insert completed", "id", v.ID, "inserted", n > 0, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, v.AccountID)
	return n > 0, nil
}

// SetEmailIfEmpty fills the email only when none is recorded yet.
func (r *SQLVisitorRepository) SetEmailIfEmpty(ctx context.Context, visitorID, email string) (bool, error) {
	const query = `UPDATE visitors SET email = ? WHERE id = ? AND (email IS NULL OR email = '')`
	return r.fillOnce(ctx, query, attribution.NormalizeEmail(email), visitorID)
}

// SetFingerprintIfEmpty fills the fingerprint only when none is recorded yet.
func (r *SQLVisitorRepository) SetFingerprintIfEmpty(ctx context.Context, visitorID, fingerprint string) (bool, error) {
	const query = `UPDATE visitors SET fingerprint = ? WHERE id = ? AND (fingerprint IS NULL OR fingerprint = '')`
	return r.fillOnce(ctx, query, fingerprint, visitorID)
}

func (r *SQLVisitorRepository) fillOnce(ctx context.Context, query, value, visitorID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, value, visitorID)
	if err != nil {
		r.logger.Database().Error("Visitor update failed", "error", err.Error(), "id", visitorID)
		return false, fmt.Errorf("failed to update visitor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLVisitorRepository) findOne(ctx context.Context, op, query, accountID string, args ...any) (*attribution.Visitor, error) {
	start := time.Now()
	r.logger.Database().Debug("Executing visitor lookup", "op", op, "accountId", accountID)

	row := r.db.QueryRowContext(ctx, query, args...)
	v, err := scanVisitor(row)
	if err != nil {
		r.logger.Database().Error("Visitor lookup failed", "op", op, "error", err.Error(), "accountId", accountID)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Debug("Visitor lookup completed", "op", op, "found", v != nil, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, accountID)
	return v, nil
}

func scanVisitor(row *sql.Row) (*attribution.Visitor, error) {
	var (
		v                    attribution.Visitor
		email, fingerprint   sql.NullString
		touchedAt, createdAt string
	)
	err := row.Scan(
		&v.ID, &v.AccountID, &v.VisitorToken, &email, &fingerprint,
		&v.FirstTouch.Source, &v.FirstTouch.Medium, &v.FirstTouch.Campaign, &v.FirstTouch.Content,
		&v.FirstTouch.Term, &v.FirstTouch.Referrer, &v.FirstTouch.LandingPage,
		&touchedAt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan visitor: %w", err)
	}

	v.Email = database.StringPtr(email)
	v.Fingerprint = database.StringPtr(fingerprint)
	if v.FirstTouch.CapturedAt, err = database.ParseTime(touchedAt); err != nil {
		return nil, err
	}
	if v.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &v, nil
}
