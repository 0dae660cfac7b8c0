// Package ledger provides the SQL-based purchase ledger.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
)

const purchaseColumns = `id, account_id, visitor_id, launch_id, email, amount_cents, currency,
		course_name, platform, platform_purchase_id,
		first_source, first_medium, first_campaign, first_content, first_term, first_referrer,
		first_landing_page, first_touch_at,
		last_source, last_medium, last_campaign, last_content, last_term, last_referrer,
		last_landing_page, last_touch_at,
		attribution_status, purchased_at, created_at`

// SQLPurchaseRepository is the SQL-based implementation of the PurchaseRepository.
type SQLPurchaseRepository struct {
	db     database.Querier
	logger *logging.ChanneledLogger
}

// NewSQLPurchaseRepository creates a new instance of the repository.
func NewSQLPurchaseRepository(db database.Querier, logger *logging.ChanneledLogger) *SQLPurchaseRepository {
	return &SQLPurchaseRepository{db: db, logger: logger}
}

// attributionColumns are carried over from an existing matched row on redelivery.
var attributionColumns = []string{
	"visitor_id",
	"first_source", "first_medium", "first_campaign", "first_content", "first_term",
	"first_referrer", "first_landing_page", "first_touch_at",
	"last_source", "last_medium", "last_campaign", "last_content", "last_term",
	"last_referrer", "last_landing_page", "last_touch_at",
	"attribution_status",
}

var upsertPurchaseQuery = buildUpsertPurchaseQuery()

func buildUpsertPurchaseQuery() string {
	var b strings.Builder
	b.WriteString(`
		INSERT INTO purchases (id, account_id, visitor_id, launch_id, email, amount_cents, currency,
			course_name, platform, platform_purchase_id,
			first_source, first_medium, first_campaign, first_content, first_term, first_referrer,
			first_landing_page, first_touch_at,
			last_source, last_medium, last_campaign, last_content, last_term, last_referrer,
			last_landing_page, last_touch_at,
			attribution_status, purchased_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, platform, platform_purchase_id) DO UPDATE SET
			email = excluded.email,
			amount_cents = CASE WHEN purchases.refunded_at IS NOT NULL THEN 0 ELSE excluded.amount_cents END,
			currency = excluded.currency,
			course_name = excluded.course_name,
			purchased_at = excluded.purchased_at,
			updated_at = excluded.updated_at`)
	for _, col := range attributionColumns {
		fmt.Fprintf(&b, ",\n\t\t\t%[1]s = CASE WHEN purchases.attribution_status = 'matched' THEN purchases.%[1]s ELSE excluded.%[1]s END", col)
	}
	b.WriteString("\n\t\tRETURNING id")
	return b.String()
}

// Upsert inserts the purchase or, when (account, platform, platform purchase id) already
// exists, updates it in the same statement. An existing row keeps its launch link and
// refund. Its attribution is kept once matched, so a redelivery can only gain a match.
// It returns the id of the stored row.
func (r *SQLPurchaseRepository) Upsert(ctx context.Context, p *attribution.Purchase) (string, error) {
	query := upsertPurchaseQuery

	start := time.Now()
	r.logger.Database().Debug("Executing purchase upsert", "accountId", p.AccountID, "platform", p.Platform, "platformPurchaseId", p.PlatformPurchaseID)

	args := []any{
		p.ID, p.AccountID, database.NullString(p.VisitorID), database.NullString(p.LaunchID),
		p.Email, database.ToCents(p.Amount), p.Currency, p.CourseName, string(p.Platform), p.PlatformPurchaseID,
	}
	args = append(args, touchArgs(p.FirstTouch)...)
	args = append(args, touchArgs(p.LastTouch)...)
	args = append(args, string(p.Status), database.FormatTime(p.PurchasedAt),
		database.FormatTime(p.CreatedAt), database.FormatTime(p.CreatedAt))

	var id string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		r.logger.Database().Error("Purchase upsert failed", "error", err.Error(), "accountId", p.AccountID, "platformPurchaseId", p.PlatformPurchaseID)
		return "", fmt.Errorf("failed to upsert purchase: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Purchase upsert completed", "id", id, "accountId", p.AccountID, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, p.AccountID)
	return id, nil
}

// FindByID retrieves a purchase owned by accountID.
func (r *SQLPurchaseRepository) FindByID(ctx context.Context, accountID, id string) (*attribution.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE account_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, query, accountID, id)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Purchase lookup failed", "error", err.Error(), "id", id)
		return nil, fmt.Errorf("failed to load purchase: %w", err)
	}
	return p, nil
}

// UpdateAttribution rewrites the visitor link, touches, and status of a purchase.
func (r *SQLPurchaseRepository) UpdateAttribution(ctx context.Context, p *attribution.Purchase) error {
	const query = `
		UPDATE purchases SET visitor_id = ?,
			first_source = ?, first_medium = ?, first_campaign = ?, first_content = ?, first_term = ?,
			first_referrer = ?, first_landing_page = ?, first_touch_at = ?,
			last_source = ?, last_medium = ?, last_campaign = ?, last_content = ?, last_term = ?,
			last_referrer = ?, last_landing_page = ?, last_touch_at = ?,
			attribution_status = ?, updated_at = ?
		WHERE account_id = ? AND id = ?`

	args := []any{database.NullString(p.VisitorID)}
	args = append(args, touchArgs(p.FirstTouch)...)
	args = append(args, touchArgs(p.LastTouch)...)
	args = append(args, string(p.Status), database.FormatTime(time.Now()), p.AccountID, p.ID)

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Database().Error("Purchase attribution update failed", "error", err.Error(), "id", p.ID)
		return fmt.Errorf("failed to update purchase attribution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("purchase %s not found for account %s", p.ID, p.AccountID)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), p.AccountID)
	return nil
}

// ZeroAmount records a refund on the existing row.
func (r *SQLPurchaseRepository) ZeroAmount(ctx context.Context, accountID string, platform attribution.Platform, platformPurchaseID string) (bool, error) {
	const query = `
		UPDATE purchases SET amount_cents = 0, refunded_at = ?, updated_at = ?
		WHERE account_id = ? AND platform = ? AND platform_purchase_id = ?`

	now := database.FormatTime(time.Now())
	res, err := r.db.ExecContext(ctx, query, now, now, accountID, string(platform), platformPurchaseID)
	if err != nil {
		r.logger.Database().Error("Purchase refund failed", "error", err.Error(), "accountId", accountID, "platformPurchaseId", platformPurchaseID)
		return false, fmt.Errorf("failed to zero purchase amount: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// ListUnmatched returns every unmatched purchase of an account, oldest first.
func (r *SQLPurchaseRepository) ListUnmatched(ctx context.Context, accountID string) ([]*attribution.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases
		WHERE account_id = ? AND attribution_status = ?
		ORDER BY purchased_at ASC, id ASC`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, accountID, string(attribution.StatusUnmatched))
	if err != nil {
		r.logger.Database().Error("Unmatched purchase query failed", "error", err.Error(), "accountId", accountID)
		return nil, fmt.Errorf("failed to query unmatched purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*attribution.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), accountID)
	return purchases, nil
}

// CountByStatus returns the total and matched purchase counts for an account.
func (r *SQLPurchaseRepository) CountByStatus(ctx context.Context, accountID string) (int, int, error) {
	const query = `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN attribution_status = ? THEN 1 ELSE 0 END), 0)
		FROM purchases WHERE account_id = ?`

	var total, matched int
	if err := r.db.QueryRowContext(ctx, query, string(attribution.StatusMatched), accountID).Scan(&total, &matched); err != nil {
		r.logger.Database().Error("Match count failed", "error", err.Error(), "accountId", accountID)
		return 0, 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	return total, matched, nil
}

// AssignLaunch links one purchase to a launch when it has no launch yet.
func (r *SQLPurchaseRepository) AssignLaunch(ctx context.Context, accountID, purchaseID, launchID string) (bool, error) {
	const query = `
		UPDATE purchases SET launch_id = ?
		WHERE account_id = ? AND id = ? AND launch_id IS NULL`

	res, err := r.db.ExecContext(ctx, query, launchID, accountID, purchaseID)
	if err != nil {
		r.logger.Database().Error("Launch assignment failed", "error", err.Error(), "purchaseId", purchaseID, "launchId", launchID)
		return false, fmt.Errorf("failed to assign purchase to launch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// AssignRange links every unassigned purchase of the account inside [start, end] to a launch.
func (r *SQLPurchaseRepository) AssignRange(ctx context.Context, accountID, launchID string, start, end time.Time) (int64, error) {
	const query = `
		UPDATE purchases SET launch_id = ?
		WHERE account_id = ? AND launch_id IS NULL AND purchased_at >= ? AND purchased_at <= ?`
	return r.linkRange(ctx, query, accountID, launchID, start, end)
}

// RelinkRange links every purchase of the account inside [start, end] to a launch, taking
// purchases away from any launch that held them.
func (r *SQLPurchaseRepository) RelinkRange(ctx context.Context, accountID, launchID string, start, end time.Time) (int64, error) {
	const query = `
		UPDATE purchases SET launch_id = ?
		WHERE account_id = ? AND purchased_at >= ? AND purchased_at <= ?`
	return r.linkRange(ctx, query, accountID, launchID, start, end)
}

func (r *SQLPurchaseRepository) linkRange(ctx context.Context, query, accountID, launchID string, start, end time.Time) (int64, error) {
	began := time.Now()
	res, err := r.db.ExecContext(ctx, query, launchID, accountID, database.FormatTime(start), database.FormatTime(end))
	if err != nil {
		r.logger.Database().Error("Range assignment failed", "error", err.Error(), "launchId", launchID)
		return 0, fmt.Errorf("failed to assign purchases by range: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	r.logger.Database().Debug("Range assignment completed", "launchId", launchID, "linked", n, "duration", time.Since(began))
	database.CheckAndLogSlowQuery(r.logger, "BULK_"+query, time.Since(began), accountID)
	return n, nil
}

// DetachLaunch clears the launch link on every purchase referencing it.
func (r *SQLPurchaseRepository) DetachLaunch(ctx context.Context, accountID, launchID string) (int64, error) {
	const query = `UPDATE purchases SET launch_id = NULL WHERE account_id = ? AND launch_id = ?`

	res, err := r.db.ExecContext(ctx, query, accountID, launchID)
	if err != nil {
		r.logger.Database().Error("Launch detach failed", "error", err.Error(), "launchId", launchID)
		return 0, fmt.Errorf("failed to detach purchases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

func touchArgs(t *attribution.Touch) []any {
	if t == nil {
		return []any{nil, nil, nil, nil, nil, nil, nil, nil}
	}
	return []any{t.Source, t.Medium, t.Campaign, t.Content, t.Term, t.Referrer, t.LandingPage, database.FormatTime(t.CapturedAt)}
}

type scanner interface {
	Scan(dest ...any) error
}

type nullTouch struct {
	source, medium, campaign, content, term, referrer, landingPage, at sql.NullString
}

func (n *nullTouch) dest() []any {
	return []any{&n.source, &n.medium, &n.campaign, &n.content, &n.term, &n.referrer, &n.landingPage, &n.at}
}

func (n *nullTouch) touch() (*attribution.Touch, error) {
	if !n.at.Valid {
		return nil, nil
	}
	at, err := database.ParseTime(n.at.String)
	if err != nil {
		return nil, err
	}
	return &attribution.Touch{
		Source:      n.source.String,
		Medium:      n.medium.String,
		Campaign:    n.campaign.String,
		Content:     n.content.String,
		Term:        n.term.String,
		Referrer:    n.referrer.String,
		LandingPage: n.landingPage.String,
		CapturedAt:  at,
	}, nil
}

func scanPurchase(row scanner) (*attribution.Purchase, error) {
	var (
		p                      attribution.Purchase
		visitorID, launchID    sql.NullString
		cents                  int64
		platform, status       string
		first, last            nullTouch
		purchasedAt, createdAt string
	)

	dest := []any{&p.ID, &p.AccountID, &visitorID, &launchID, &p.Email, &cents, &p.Currency,
		&p.CourseName, &platform, &p.PlatformPurchaseID}
	dest = append(dest, first.dest()...)
	dest = append(dest, last.dest()...)
	dest = append(dest, &status, &purchasedAt, &createdAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	p.VisitorID = database.StringPtr(visitorID)
	p.LaunchID = database.StringPtr(launchID)
	p.Amount = database.FromCents(cents)
	p.Platform = attribution.Platform(platform)
	p.Status = attribution.Status(status)
	if p.FirstTouch, err = first.touch(); err != nil {
		return nil, err
	}
	if p.LastTouch, err = last.touch(); err != nil {
		return nil, err
	}
	if p.PurchasedAt, err = database.ParseTime(purchasedAt); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}
