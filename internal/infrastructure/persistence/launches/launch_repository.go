// Package launches provides the SQL-based launch repository.
package launches

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/launch"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
)

const launchColumns = `l.id, l.account_id, l.title, l.description, l.start_date, l.end_date,
		l.revenue_goal_cents, l.sales_goal, l.status, l.share_token, l.share_password_hash,
		l.share_expires_at, l.cached_revenue_cents, l.cached_students, l.cached_conversion_rate,
		l.cache_updated_at, l.created_at, l.updated_at`

var sortColumns = map[launch.SortField]string{
	launch.SortByStart:   "l.start_date",
	launch.SortByEnd:     "l.end_date",
	launch.SortByCreated: "l.created_at",
}

// SQLLaunchRepository is the SQL-based implementation of the LaunchRepository.
type SQLLaunchRepository struct {
	db     database.Querier
	logger *logging.ChanneledLogger
}

// NewSQLLaunchRepository creates a new instance of the repository.
func NewSQLLaunchRepository(db database.Querier, logger *logging.ChanneledLogger) *SQLLaunchRepository {
	return &SQLLaunchRepository{db: db, logger: logger}
}

// Create saves a new launch.
func (r *SQLLaunchRepository) Create(ctx context.Context, l *launch.Launch) error {
	const query = `
		INSERT INTO launches (id, account_id, title, description, start_date, end_date,
			revenue_goal_cents, sales_goal, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	r.logger.Database().Debug("Executing launch insert", "id", l.ID, "accountId", l.AccountID)

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.AccountID, l.Title, database.NullString(l.Description),
		database.FormatTime(l.StartDate), database.FormatTime(l.EndDate),
		database.NullCents(l.Goals.Revenue), nullInt(l.Goals.Sales), string(l.Status),
		database.FormatTime(l.CreatedAt), database.FormatTime(l.UpdatedAt),
	)
	if err != nil {
		r.logger.Database().Error("Launch insert failed", "error", err.Error(), "id", l.ID)
		return fmt.Errorf("failed to insert launch: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Launch insert completed", "id", l.ID, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, l.AccountID)
	return nil
}

// FindByID retrieves a launch owned by accountID.
func (r *SQLLaunchRepository) FindByID(ctx context.Context, accountID, id string) (*launch.Launch, error) {
	query := `SELECT ` + launchColumns + ` FROM launches l WHERE l.account_id = ? AND l.id = ?`
	return r.findOne(ctx, query, accountID, id)
}

// FindByShareToken retrieves the launch a share token grants access to.
func (r *SQLLaunchRepository) FindByShareToken(ctx context.Context, token string) (*launch.Launch, error) {
	if token == "" {
		return nil, nil
	}
	query := `SELECT ` + launchColumns + ` FROM launches l WHERE l.share_token = ?`
	return r.findOne(ctx, query, token)
}

// FindCovering returns the non-archived launch whose window contains at, preferring the
// latest start when windows overlap.
func (r *SQLLaunchRepository) FindCovering(ctx context.Context, accountID string, at time.Time) (*launch.Launch, error) {
	query := `SELECT ` + launchColumns + ` FROM launches l
		WHERE l.account_id = ? AND l.status != ? AND l.start_date <= ? AND l.end_date >= ?
		ORDER BY l.start_date DESC, l.id DESC
		LIMIT 1`
	ts := database.FormatTime(at)
	return r.findOne(ctx, query, accountID, string(launch.StatusArchived), ts, ts)
}

// FindByIDs retrieves the launches among ids owned by accountID. Unknown ids are skipped.
func (r *SQLLaunchRepository) FindByIDs(ctx context.Context, accountID string, ids []string) ([]*launch.Launch, error) {
	if len(ids) == 0 {
		return []*launch.Launch{}, nil
	}

	query := `SELECT ` + launchColumns + ` FROM launches l
		WHERE l.account_id = ? AND l.id IN (` + database.Placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, accountID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Database().Error("Launch bulk lookup failed", "error", err.Error(), "accountId", accountID)
		return nil, fmt.Errorf("failed to query launches: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*launch.Launch, len(ids))
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return nil, err
		}
		byID[l.ID] = l
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate launches: %w", err)
	}

	// preserve caller order
	result := make([]*launch.Launch, 0, len(byID))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			result = append(result, l)
			delete(byID, id)
		}
	}
	return result, nil
}

// List returns one page of launches with per-row purchase count and revenue, plus the
// total number of matching launches.
func (r *SQLLaunchRepository) List(ctx context.Context, accountID string, q launch.ListQuery) ([]*launch.ListRow, int, error) {
	where := `l.account_id = ?`
	args := []any{accountID}
	if q.Status != nil {
		where += ` AND l.status = ?`
		args = append(args, string(*q.Status))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM launches l WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		r.logger.Database().Error("Launch count failed", "error", err.Error(), "accountId", accountID)
		return nil, 0, fmt.Errorf("failed to count launches: %w", err)
	}

	column, ok := sortColumns[q.SortField]
	if !ok {
		column = sortColumns[launch.SortByCreated]
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	query := `SELECT ` + launchColumns + `, COUNT(p.id), COALESCE(SUM(p.amount_cents), 0)
		FROM launches l
		LEFT JOIN purchases p ON p.launch_id = l.id AND p.account_id = l.account_id
		WHERE ` + where + `
		GROUP BY l.id
		ORDER BY ` + column + ` ` + direction + `, l.id ` + direction + `
		LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset())

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Database().Error("Launch list failed", "error", err.Error(), "accountId", accountID)
		return nil, 0, fmt.Errorf("failed to list launches: %w", err)
	}
	defer rows.Close()

	list := []*launch.ListRow{}
	for rows.Next() {
		var (
			row   launch.ListRow
			cents int64
		)
		l, err := scanLaunchWith(rows, &row.PurchaseCount, &cents)
		if err != nil {
			return nil, 0, err
		}
		row.Launch = l
		row.Revenue = database.FromCents(cents)
		list = append(list, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate launches: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), accountID)
	return list, total, nil
}

// Update writes every mutable column of a launch.
func (r *SQLLaunchRepository) Update(ctx context.Context, l *launch.Launch) error {
	const query = `
		UPDATE launches SET title = ?, description = ?, start_date = ?, end_date = ?,
			revenue_goal_cents = ?, sales_goal = ?, status = ?,
			cached_revenue_cents = ?, cached_students = ?, cached_conversion_rate = ?, cache_updated_at = ?,
			updated_at = ?
		WHERE account_id = ? AND id = ?`

	var (
		cachedCents    sql.NullInt64
		cachedStudents sql.NullInt64
		cachedRate     sql.NullFloat64
		cachedAt       sql.NullString
	)
	if c := l.Cache; c != nil {
		cachedCents = sql.NullInt64{Int64: database.ToCents(c.Revenue), Valid: true}
		cachedStudents = sql.NullInt64{Int64: int64(c.Students), Valid: true}
		cachedRate = sql.NullFloat64{Float64: c.ConversionRate, Valid: true}
		cachedAt = database.NullTime(&c.CachedAt)
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		l.Title, database.NullString(l.Description), database.FormatTime(l.StartDate), database.FormatTime(l.EndDate),
		database.NullCents(l.Goals.Revenue), nullInt(l.Goals.Sales), string(l.Status),
		cachedCents, cachedStudents, cachedRate, cachedAt,
		database.FormatTime(l.UpdatedAt), l.AccountID, l.ID,
	)
	if err != nil {
		r.logger.Database().Error("Launch update failed", "error", err.Error(), "id", l.ID)
		return fmt.Errorf("failed to update launch: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), l.AccountID)
	return nil
}

// SetStatus persists a status. Archived rows are only ever written to archived.
func (r *SQLLaunchRepository) SetStatus(ctx context.Context, accountID, id string, status launch.Status, now time.Time) error {
	query := `UPDATE launches SET status = ?, updated_at = ? WHERE account_id = ? AND id = ?`
	if status != launch.StatusArchived {
		query += ` AND status != 'archived'`
	}

	if _, err := r.db.ExecContext(ctx, query, string(status), database.FormatTime(now), accountID, id); err != nil {
		r.logger.Database().Error("Launch status update failed", "error", err.Error(), "id", id, "status", status)
		return fmt.Errorf("failed to set launch status: %w", err)
	}
	return nil
}

// Delete removes a launch and its view log. Purchases must be detached by the caller.
func (r *SQLLaunchRepository) Delete(ctx context.Context, accountID, id string) (bool, error) {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM launch_views WHERE launch_id IN (SELECT id FROM launches WHERE account_id = ? AND id = ?)`, accountID, id); err != nil {
		return false, fmt.Errorf("failed to delete launch views: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM launches WHERE account_id = ? AND id = ?`, accountID, id)
	if err != nil {
		r.logger.Database().Error("Launch delete failed", "error", err.Error(), "id", id)
		return false, fmt.Errorf("failed to delete launch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// SaveShare writes or, when share is nil, clears the sharing metadata.
func (r *SQLLaunchRepository) SaveShare(ctx context.Context, accountID, id string, share *launch.Share, now time.Time) error {
	const query = `
		UPDATE launches SET share_token = ?, share_password_hash = ?, share_expires_at = ?, updated_at = ?
		WHERE account_id = ? AND id = ?`

	var token, hash, expires sql.NullString
	if share != nil {
		token = sql.NullString{String: share.Token, Valid: true}
		hash = database.NullString(share.PasswordHash)
		expires = database.NullTime(share.ExpiresAt)
	}

	if _, err := r.db.ExecContext(ctx, query, token, hash, expires, database.FormatTime(now), accountID, id); err != nil {
		r.logger.Database().Error("Launch share update failed", "error", err.Error(), "id", id)
		return fmt.Errorf("failed to save launch share: %w", err)
	}
	return nil
}

// WriteCache stores aggregate values for a launch.
func (r *SQLLaunchRepository) WriteCache(ctx context.Context, id string, c *launch.CachedAggregates) error {
	const query = `
		UPDATE launches SET cached_revenue_cents = ?, cached_students = ?, cached_conversion_rate = ?,
			cache_updated_at = ?
		WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, database.ToCents(c.Revenue), c.Students, c.ConversionRate,
		database.FormatTime(c.CachedAt), id); err != nil {
		r.logger.Database().Error("Launch cache write failed", "error", err.Error(), "id", id)
		return fmt.Errorf("failed to write launch cache: %w", err)
	}
	return nil
}

// AdvanceToActive moves every upcoming launch whose start has passed to active.
func (r *SQLLaunchRepository) AdvanceToActive(ctx context.Context, now time.Time) ([]launch.StatusChange, error) {
	const query = `
		UPDATE launches SET status = 'active', updated_at = ?
		WHERE status = 'upcoming' AND start_date <= ?
		RETURNING id, account_id, title`
	ts := database.FormatTime(now)
	return r.advance(ctx, "BULK_ADVANCE_ACTIVE", query, launch.StatusActive, ts, ts)
}

// AdvanceToCompleted moves every active launch whose end has passed to completed.
func (r *SQLLaunchRepository) AdvanceToCompleted(ctx context.Context, now time.Time) ([]launch.StatusChange, error) {
	const query = `
		UPDATE launches SET status = 'completed', updated_at = ?
		WHERE status = 'active' AND end_date < ?
		RETURNING id, account_id, title`
	ts := database.FormatTime(now)
	return r.advance(ctx, "BULK_ADVANCE_COMPLETED", query, launch.StatusCompleted, ts, ts)
}

func (r *SQLLaunchRepository) advance(ctx context.Context, label, query string, to launch.Status, args ...any) ([]launch.StatusChange, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Database().Error("Launch status advance failed", "error", err.Error(), "to", to)
		return nil, fmt.Errorf("failed to advance launches to %s: %w", to, err)
	}
	defer rows.Close()

	var changes []launch.StatusChange
	for rows.Next() {
		c := launch.StatusChange{To: to}
		if err := rows.Scan(&c.LaunchID, &c.AccountID, &c.Title); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status changes: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, label, time.Since(start), "system")
	return changes, nil
}

// RecordView appends a share view.
func (r *SQLLaunchRepository) RecordView(ctx context.Context, v *launch.View) error {
	const query = `INSERT INTO launch_views (id, launch_id, viewer_ip, user_agent, viewed_at) VALUES (?, ?, ?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query, v.ID, v.LaunchID, v.ViewerIP, v.UserAgent, database.FormatTime(v.ViewedAt)); err != nil {
		r.logger.Database().Error("Launch view insert failed", "error", err.Error(), "launchId", v.LaunchID)
		return fmt.Errorf("failed to record launch view: %w", err)
	}
	return nil
}

// ViewStats summarises the view log of a launch; recent counts views at or after since.
func (r *SQLLaunchRepository) ViewStats(ctx context.Context, launchID string, since time.Time) (*launch.ViewStats, error) {
	const query = `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN viewed_at >= ? THEN 1 ELSE 0 END), 0), MAX(viewed_at)
		FROM launch_views WHERE launch_id = ?`

	var (
		stats launch.ViewStats
		last  sql.NullString
	)
	if err := r.db.QueryRowContext(ctx, query, database.FormatTime(since), launchID).Scan(&stats.Total, &stats.Last7Days, &last); err != nil {
		r.logger.Database().Error("Launch view stats failed", "error", err.Error(), "launchId", launchID)
		return nil, fmt.Errorf("failed to load view stats: %w", err)
	}

	var err error
	if stats.LastViewedAt, err = database.ParseNullTime(last); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *SQLLaunchRepository) findOne(ctx context.Context, query string, args ...any) (*launch.Launch, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, query, args...)
	l, err := scanLaunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Launch lookup failed", "error", err.Error())
		return nil, err
	}
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), l.AccountID)
	return l, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLaunch(row scanner) (*launch.Launch, error) {
	return scanLaunchWith(row)
}

func scanLaunchWith(row scanner, extra ...any) (*launch.Launch, error) {
	var (
		l                                  launch.Launch
		description                        sql.NullString
		startDate, endDate, status         string
		revenueGoal, salesGoal             sql.NullInt64
		shareToken, shareHash, shareExpiry sql.NullString
		cachedCents, cachedStudents        sql.NullInt64
		cachedRate                         sql.NullFloat64
		cachedAt                           sql.NullString
		createdAt, updatedAt               string
	)

	dest := []any{&l.ID, &l.AccountID, &l.Title, &description, &startDate, &endDate,
		&revenueGoal, &salesGoal, &status, &shareToken, &shareHash, &shareExpiry,
		&cachedCents, &cachedStudents, &cachedRate, &cachedAt, &createdAt, &updatedAt}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan launch: %w", err)
	}

	var err error
	l.Description = database.StringPtr(description)
	l.Status = launch.Status(status)
	l.Goals.Revenue = database.CentsPtr(revenueGoal)
	if salesGoal.Valid {
		n := int(salesGoal.Int64)
		l.Goals.Sales = &n
	}
	if l.StartDate, err = database.ParseTime(startDate); err != nil {
		return nil, err
	}
	if l.EndDate, err = database.ParseTime(endDate); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}

	if shareToken.Valid && strings.TrimSpace(shareToken.String) != "" {
		l.Share = &launch.Share{Token: shareToken.String, PasswordHash: database.StringPtr(shareHash)}
		if l.Share.ExpiresAt, err = database.ParseNullTime(shareExpiry); err != nil {
			return nil, err
		}
	}

	if cachedAt.Valid && cachedCents.Valid {
		at, err := database.ParseTime(cachedAt.String)
		if err != nil {
			return nil, err
		}
		l.Cache = &launch.CachedAggregates{
			Revenue:        database.FromCents(cachedCents.Int64),
			Students:       int(cachedStudents.Int64),
			ConversionRate: cachedRate.Float64,
			CachedAt:       at,
		}
	}
	return &l, nil
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
