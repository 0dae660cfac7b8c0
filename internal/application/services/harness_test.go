package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/launch"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/sqlstore"
	"github.com/AtRiskMedia/launchtrack-go/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	account = "acct_1"
	day     = 24 * time.Hour
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t       *testing.T
	ctx     context.Context
	now     time.Time
	db      *database.DB
	store   *sqlstore.Store
	cache   *stores.MetricsStore
	mailer  *email.LogService
	tracker *performance.Tracker

	identity    *IdentityService
	attribution *AttributionService
	launches    *LaunchService
	metrics     *MetricsService
	scheduler   *SchedulerService
	jobs        *JobService

	seq *int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logging.NewNopLogger()
	db := testutil.NewDB(t)
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		store:   sqlstore.New(db, logger),
		cache:   stores.NewMetricsStore(clock.Fixed{T: now}),
		mailer:  email.NewLogService(logger),
		tracker: performance.NewTracker(),
		seq:     new(int),
	}
	h.wire(now)
	return h
}

// at returns a harness sharing storage and cache whose services see a different now.
func (h *harness) at(t time.Time) *harness {
	next := *h
	next.wire(t)
	return &next
}

func (h *harness) wire(t time.Time) {
	logger := logging.NewNopLogger()
	clk := clock.Fixed{T: t}
	h.now = t
	h.identity = NewIdentityService(h.store, clk, logger, h.tracker)
	h.attribution = NewAttributionService(h.store, h.cache, clk, logger, h.tracker)
	h.metrics = NewMetricsService(h.store, h.cache, clk, logger, h.tracker)
	h.launches = NewLaunchService(h.store, h.metrics, h.mailer, h.cache, clk, logger, h.tracker)
	h.scheduler = NewSchedulerService(h.store, h.cache, clk, time.Minute, logger, h.tracker)
	h.jobs = NewJobService(h.store, clk, logger)
}

// visit records one tracking hit and returns the visitor.
func (h *harness) visit(token, email, source string, at time.Time) *attribution.Visitor {
	h.t.Helper()
	*h.seq++
	v, err := h.identity.RecordVisit(h.ctx, account, attribution.VisitEvent{
		VisitorToken: token,
		SessionToken: fmt.Sprintf("%s-s%d", token, *h.seq),
		Source:       source,
		Campaign:     source + "-campaign",
		Email:        email,
		OccurredAt:   at,
	})
	require.NoError(h.t, err)
	return v
}

// buy attributes a purchase and returns the result.
func (h *harness) buy(email string, amount int64, at time.Time) *attribution.Result {
	h.t.Helper()
	*h.seq++
	res, err := h.attribution.Attribute(h.ctx, account, attribution.NormalizedPurchase{
		Email:              email,
		Amount:             decimal.NewFromInt(amount),
		Platform:           "teachable",
		PlatformPurchaseID: fmt.Sprintf("tch_%d", *h.seq),
		PurchasedAt:        at,
	})
	require.NoError(h.t, err)
	return res
}

func (h *harness) newLaunch(title string, start, end time.Time) *launch.Launch {
	h.t.Helper()
	l, err := h.launches.Create(h.ctx, account, launch.Input{Title: title, StartDate: start, EndDate: end})
	require.NoError(h.t, err)
	return l
}

func (h *harness) purchaseLaunch(purchaseID string) *string {
	h.t.Helper()
	p, err := h.store.Purchases().FindByID(h.ctx, account, purchaseID)
	require.NoError(h.t, err)
	require.NotNil(h.t, p)
	return p.LaunchID
}
