// Package analytics provides the concrete SQL-based aggregate queries behind dashboards.
//
// Ranges are half-open [start, end) on purchased_at (purchases) and created_at (visitors).
// Launch scoped queries use the launch link instead of a range.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/metrics"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
)

const (
	sourceExpr   = `COALESCE(NULLIF(first_source, ''), '` + metrics.UnmatchedSource + `')`
	campaignExpr = `COALESCE(NULLIF(first_campaign, ''), '` + metrics.NoCampaign + `')`
	mediumExpr   = `COALESCE(NULLIF(first_medium, ''), '` + metrics.NoMedium + `')`
)

// SQLMetricsRepository runs aggregate queries over the purchase ledger and identity store.
type SQLMetricsRepository struct {
	db     database.Querier
	logger *logging.ChanneledLogger
}

// NewSQLMetricsRepository creates a new instance of the repository.
func NewSQLMetricsRepository(db database.Querier, logger *logging.ChanneledLogger) *SQLMetricsRepository {
	return &SQLMetricsRepository{db: db, logger: logger}
}

// Totals returns revenue, distinct buyers, and purchase count in range.
func (r *SQLMetricsRepository) Totals(ctx context.Context, accountID string, rg metrics.DateRange) (metrics.Totals, error) {
	const query = `
		SELECT COALESCE(SUM(amount_cents), 0), COUNT(DISTINCT email), COUNT(*)
		FROM purchases
		WHERE account_id = ? AND purchased_at >= ? AND purchased_at < ?`

	return r.totals(ctx, "BULK_TOTALS", query, accountID,
		accountID, database.FormatTime(rg.Start), database.FormatTime(rg.End))
}

// LaunchTotals returns revenue, distinct buyers, and purchase count linked to a launch.
func (r *SQLMetricsRepository) LaunchTotals(ctx context.Context, accountID, launchID string) (metrics.Totals, error) {
	const query = `
		SELECT COALESCE(SUM(amount_cents), 0), COUNT(DISTINCT email), COUNT(*)
		FROM purchases
		WHERE account_id = ? AND launch_id = ?`

	return r.totals(ctx, query, query, accountID, accountID, launchID)
}

func (r *SQLMetricsRepository) totals(ctx context.Context, label, query, accountID string, args ...any) (metrics.Totals, error) {
	start := time.Now()
	r.logger.Database().Debug("Executing totals query", "accountId", accountID)

	var (
		t     metrics.Totals
		cents int64
	)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&cents, &t.Students, &t.Purchases); err != nil {
		r.logger.Database().Error("Totals query failed", "error", err.Error(), "accountId", accountID)
		return metrics.Totals{}, fmt.Errorf("failed to load totals: %w", err)
	}
	t.Revenue = database.FromCents(cents)

	database.CheckAndLogSlowQuery(r.logger, label, time.Since(start), accountID)
	return t, nil
}

// RevenueBySource groups purchases in range by first-touch source, revenue descending.
func (r *SQLMetricsRepository) RevenueBySource(ctx context.Context, accountID string, rg metrics.DateRange) ([]metrics.SourceAggregate, error) {
	query := `
		SELECT ` + sourceExpr + ` AS source, COALESCE(SUM(amount_cents), 0) AS revenue,
			COUNT(DISTINCT email), COUNT(*)
		FROM purchases
		WHERE account_id = ? AND purchased_at >= ? AND purchased_at < ?
		GROUP BY source
		ORDER BY revenue DESC, source ASC`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, accountID, database.FormatTime(rg.Start), database.FormatTime(rg.End))
	if err != nil {
		r.logger.Database().Error("Revenue by source query failed", "error", err.Error(), "accountId", accountID)
		return nil, fmt.Errorf("failed to query revenue by source: %w", err)
	}
	defer rows.Close()

	result := []metrics.SourceAggregate{}
	for rows.Next() {
		var (
			a     metrics.SourceAggregate
			cents int64
		)
		if err := rows.Scan(&a.Source, &cents, &a.Students, &a.Purchases); err != nil {
			return nil, fmt.Errorf("failed to scan source aggregate: %w", err)
		}
		a.Revenue = database.FromCents(cents)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source aggregates: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, "BULK_REVENUE_BY_SOURCE", time.Since(start), accountID)
	return result, nil
}

// VisitorsBySource counts visitors created in range by first-touch source.
func (r *SQLMetricsRepository) VisitorsBySource(ctx context.Context, accountID string, rg metrics.DateRange) (map[string]int, error) {
	query := `
		SELECT ` + sourceExpr + ` AS source, COUNT(*)
		FROM visitors
		WHERE account_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY source`

	rows, err := r.db.QueryContext(ctx, query, accountID, database.FormatTime(rg.Start), database.FormatTime(rg.End))
	if err != nil {
		r.logger.Database().Error("Visitors by source query failed", "error", err.Error(), "accountId", accountID)
		return nil, fmt.Errorf("failed to query visitors by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("failed to scan visitor count: %w", err)
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

// VisitorsBetween counts visitors created within [start, end].
func (r *SQLMetricsRepository) VisitorsBetween(ctx context.Context, accountID string, start, end time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM visitors WHERE account_id = ? AND created_at >= ? AND created_at <= ?`

	var n int
	if err := r.db.QueryRowContext(ctx, query, accountID, database.FormatTime(start), database.FormatTime(end)).Scan(&n); err != nil {
		r.logger.Database().Error("Visitor count failed", "error", err.Error(), "accountId", accountID)
		return 0, fmt.Errorf("failed to count visitors: %w", err)
	}
	return n, nil
}

// Recent returns the latest purchases of an account.
func (r *SQLMetricsRepository) Recent(ctx context.Context, accountID string, limit int) ([]metrics.RecentPurchase, error) {
	query := `
		SELECT id, email, course_name, platform, amount_cents, currency, ` + sourceExpr + `,
			attribution_status, launch_id, purchased_at
		FROM purchases
		WHERE account_id = ?
		ORDER BY purchased_at DESC, id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		r.logger.Database().Error("Recent purchases query failed", "error", err.Error(), "accountId", accountID)
		return nil, fmt.Errorf("failed to query recent purchases: %w", err)
	}
	defer rows.Close()

	result := []metrics.RecentPurchase{}
	for rows.Next() {
		var (
			p           metrics.RecentPurchase
			cents       int64
			launchID    sql.NullString
			purchasedAt string
		)
		if err := rows.Scan(&p.ID, &p.Email, &p.CourseName, &p.Platform, &cents, &p.Currency,
			&p.Source, &p.Status, &launchID, &purchasedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent purchase: %w", err)
		}
		p.Amount = database.FromCents(cents)
		p.LaunchID = database.StringPtr(launchID)
		if p.PurchasedAt, err = database.ParseTime(purchasedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// DrillDown groups one source's purchases in range by (campaign, medium), revenue descending.
func (r *SQLMetricsRepository) DrillDown(ctx context.Context, accountID, source string, rg metrics.DateRange) ([]metrics.CampaignAggregate, error) {
	query := `
		SELECT ` + campaignExpr + ` AS campaign, ` + mediumExpr + ` AS medium,
			COALESCE(SUM(amount_cents), 0) AS revenue, COUNT(DISTINCT email), COUNT(*)
		FROM purchases
		WHERE account_id = ? AND purchased_at >= ? AND purchased_at < ? AND ` + sourceExpr + ` = ?
		GROUP BY campaign, medium
		ORDER BY revenue DESC, campaign ASC, medium ASC`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, accountID, database.FormatTime(rg.Start), database.FormatTime(rg.End), source)
	if err != nil {
		r.logger.Database().Error("Drill-down query failed", "error", err.Error(), "accountId", accountID, "source", source)
		return nil, fmt.Errorf("failed to query drill-down: %w", err)
	}
	defer rows.Close()

	result := []metrics.CampaignAggregate{}
	for rows.Next() {
		var (
			a     metrics.CampaignAggregate
			cents int64
		)
		if err := rows.Scan(&a.Campaign, &a.Medium, &cents, &a.Students, &a.Purchases); err != nil {
			return nil, fmt.Errorf("failed to scan campaign aggregate: %w", err)
		}
		a.Revenue = database.FromCents(cents)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaign aggregates: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, "BULK_DRILL_DOWN", time.Since(start), accountID)
	return result, nil
}

// LaunchTopSource returns the first-touch source with the most revenue for a launch, or ""
// when the launch has no purchases.
func (r *SQLMetricsRepository) LaunchTopSource(ctx context.Context, accountID, launchID string) (string, error) {
	query := `
		SELECT ` + sourceExpr + ` AS source
		FROM purchases
		WHERE account_id = ? AND launch_id = ?
		GROUP BY source
		ORDER BY SUM(amount_cents) DESC, source ASC
		LIMIT 1`

	var source string
	err := r.db.QueryRowContext(ctx, query, accountID, launchID).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		r.logger.Database().Error("Top source query failed", "error", err.Error(), "launchId", launchID)
		return "", fmt.Errorf("failed to query top source: %w", err)
	}
	return source, nil
}
