// Package repositories defines the repository interfaces for the attribution and launch
// entities. These repositories abstract the data persistence details, ensuring the core
// application is clean and decoupled from the database. Every query is scoped by account.
package repositories

import (
	"context"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/jobs"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/launch"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/metrics"
)

// VisitorRepository persists visitors. Find methods return (nil, nil) when nothing matches.
type VisitorRepository interface {
	FindByToken(ctx context.Context, accountID, token string) (*attribution.Visitor, error)
	FindByEmail(ctx context.Context, accountID, email string) (*attribution.Visitor, error)
	FindByFingerprint(ctx context.Context, accountID, fingerprint string, since time.Time) (*attribution.Visitor, error)
	CreateIfAbsent(ctx context.Context, visitor *attribution.Visitor) (bool, error)
	SetEmailIfEmpty(ctx context.Context, visitorID, email string) (bool, error)
	SetFingerprintIfEmpty(ctx context.Context, visitorID, fingerprint string) (bool, error)
}

// SessionRepository persists visitor sessions.
type SessionRepository interface {
	Append(ctx context.Context, session *attribution.Session) (bool, error)
	ListByVisitor(ctx context.Context, visitorID string) ([]*attribution.Session, error)
}

// PurchaseRepository is the purchase ledger.
type PurchaseRepository interface {
	Upsert(ctx context.Context, purchase *attribution.Purchase) (string, error)
	FindByID(ctx context.Context, accountID, id string) (*attribution.Purchase, error)
	UpdateAttribution(ctx context.Context, purchase *attribution.Purchase) error
	ZeroAmount(ctx context.Context, accountID string, platform attribution.Platform, platformPurchaseID string) (bool, error)
	ListUnmatched(ctx context.Context, accountID string) ([]*attribution.Purchase, error)
	CountByStatus(ctx context.Context, accountID string) (total, matched int, err error)
	AssignLaunch(ctx context.Context, accountID, purchaseID, launchID string) (bool, error)
	AssignRange(ctx context.Context, accountID, launchID string, start, end time.Time) (int64, error)
	RelinkRange(ctx context.Context, accountID, launchID string, start, end time.Time) (int64, error)
	DetachLaunch(ctx context.Context, accountID, launchID string) (int64, error)
}

// LaunchRepository persists launches, their share metadata, caches, and view log.
type LaunchRepository interface {
	Create(ctx context.Context, l *launch.Launch) error
	FindByID(ctx context.Context, accountID, id string) (*launch.Launch, error)
	FindByIDs(ctx context.Context, accountID string, ids []string) ([]*launch.Launch, error)
	FindByShareToken(ctx context.Context, token string) (*launch.Launch, error)
	FindCovering(ctx context.Context, accountID string, at time.Time) (*launch.Launch, error)
	List(ctx context.Context, accountID string, q launch.ListQuery) ([]*launch.ListRow, int, error)
	Update(ctx context.Context, l *launch.Launch) error
	SetStatus(ctx context.Context, accountID, id string, status launch.Status, now time.Time) error
	Delete(ctx context.Context, accountID, id string) (bool, error)
	SaveShare(ctx context.Context, accountID, id string, share *launch.Share, now time.Time) error
	WriteCache(ctx context.Context, id string, cache *launch.CachedAggregates) error
	AdvanceToActive(ctx context.Context, now time.Time) ([]launch.StatusChange, error)
	AdvanceToCompleted(ctx context.Context, now time.Time) ([]launch.StatusChange, error)
	RecordView(ctx context.Context, view *launch.View) error
	ViewStats(ctx context.Context, launchID string, since time.Time) (*launch.ViewStats, error)
}

// MetricsRepository runs the aggregate read queries behind dashboards.
type MetricsRepository interface {
	Totals(ctx context.Context, accountID string, r metrics.DateRange) (metrics.Totals, error)
	RevenueBySource(ctx context.Context, accountID string, r metrics.DateRange) ([]metrics.SourceAggregate, error)
	VisitorsBySource(ctx context.Context, accountID string, r metrics.DateRange) (map[string]int, error)
	VisitorsBetween(ctx context.Context, accountID string, start, end time.Time) (int, error)
	Recent(ctx context.Context, accountID string, limit int) ([]metrics.RecentPurchase, error)
	DrillDown(ctx context.Context, accountID, source string, r metrics.DateRange) ([]metrics.CampaignAggregate, error)
	LaunchTotals(ctx context.Context, accountID, launchID string) (metrics.Totals, error)
	LaunchTopSource(ctx context.Context, accountID, launchID string) (string, error)
}

// JobRepository persists sync job records.
type JobRepository interface {
	Create(ctx context.Context, job *jobs.Job) error
	Finish(ctx context.Context, job *jobs.Job) error
	FindByID(ctx context.Context, accountID, id string) (*jobs.Job, error)
	FailRunning(ctx context.Context, reason string, finishedAt time.Time) (int64, error)
}

// Store groups the repositories over one connection or transaction.
type Store interface {
	Visitors() VisitorRepository
	Sessions() SessionRepository
	Purchases() PurchaseRepository
	Launches() LaunchRepository
	Metrics() MetricsRepository
	Jobs() JobRepository
	// WithinTx runs fn against a Store bound to a single transaction. fn must only use
	// the Store it is handed.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
