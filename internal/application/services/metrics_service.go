package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/launch"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/metrics"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/repositories"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/shopspring/decimal"
)

// CSVHeader is the first line of every revenue export.
var CSVHeader = []string{"Source", "Visitors", "Revenue", "Students", "Conversion Rate %", "Avg Order Value", "Revenue Per Visitor"}

// MetricsService computes dashboard aggregates. Range queries are cached per account with
// a short TTL; completed launches are cached on the launch row.
type MetricsService struct {
	store       repositories.Store
	cache       interfaces.MetricsCache
	clock       clock.Clock
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewMetricsService creates a new metrics service
func NewMetricsService(store repositories.Store, cache interfaces.MetricsCache, clk clock.Clock, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *MetricsService {
	return &MetricsService{
		store:       store,
		cache:       cache,
		clock:       clk,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// Summary returns headline totals with trends against the preceding range of equal length.
func (s *MetricsService) Summary(ctx context.Context, accountID string, rg metrics.DateRange) (*metrics.Summary, error) {
	if err := rg.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, s, accountID, rangeKey("summary", rg), func() (*metrics.Summary, error) {
		current, err := s.store.Metrics().Totals(ctx, accountID, rg)
		if err != nil {
			return nil, err
		}
		previous, err := s.store.Metrics().Totals(ctx, accountID, rg.Previous())
		if err != nil {
			return nil, err
		}

		return &metrics.Summary{
			TotalRevenue:   current.Revenue,
			TotalStudents:  current.Students,
			TotalPurchases: current.Purchases,
			AvgOrderValue:  metrics.PerUnit(current.Revenue, current.Purchases),
			Trends: metrics.Trends{
				Revenue:       metrics.Trend(current.Revenue, previous.Revenue),
				Students:      metrics.Trend(decimal.NewFromInt(int64(current.Students)), decimal.NewFromInt(int64(previous.Students))),
				Purchases:     metrics.Trend(decimal.NewFromInt(int64(current.Purchases)), decimal.NewFromInt(int64(previous.Purchases))),
				AvgOrderValue: metrics.Trend(avgOrder(current), avgOrder(previous)),
			},
		}, nil
	})
}

// RevenueBySource breaks revenue down by first-touch source, highest revenue first.
func (s *MetricsService) RevenueBySource(ctx context.Context, accountID string, rg metrics.DateRange) ([]metrics.SourceRevenue, error) {
	if err := rg.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, s, accountID, rangeKey("sources", rg), func() ([]metrics.SourceRevenue, error) {
		aggregates, err := s.store.Metrics().RevenueBySource(ctx, accountID, rg)
		if err != nil {
			return nil, err
		}
		visitors, err := s.store.Metrics().VisitorsBySource(ctx, accountID, rg)
		if err != nil {
			return nil, err
		}

		rows := make([]metrics.SourceRevenue, 0, len(aggregates))
		for _, a := range aggregates {
			v := visitors[a.Source]
			rows = append(rows, metrics.SourceRevenue{
				Source:            a.Source,
				Visitors:          v,
				Revenue:           a.Revenue,
				Students:          a.Students,
				ConversionRate:    metrics.Percent(a.Students, v),
				AvgOrderValue:     metrics.PerUnit(a.Revenue, a.Purchases),
				RevenuePerVisitor: metrics.PerUnit(a.Revenue, v),
			})
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if c := rows[i].Revenue.Cmp(rows[j].Revenue); c != 0 {
				return c > 0
			}
			return rows[i].Source < rows[j].Source
		})
		return rows, nil
	})
}

// RecentPurchases lists the latest purchases of the account.
func (s *MetricsService) RecentPurchases(ctx context.Context, accountID string, limit int) ([]metrics.RecentPurchase, error) {
	if limit <= 0 {
		limit = config.RecentPurchasesLimit
	}
	if limit > 100 {
		limit = 100
	}
	rows, err := s.store.Metrics().Recent(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []metrics.RecentPurchase{}
	}
	return rows, nil
}

// DrillDown groups one source's revenue by campaign and medium.
func (s *MetricsService) DrillDown(ctx context.Context, accountID, source string, rg metrics.DateRange) ([]metrics.DrillDownRow, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, apperror.Validation("source is required")
	}
	if err := rg.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, s, accountID, rangeKey("drilldown:"+source, rg), func() ([]metrics.DrillDownRow, error) {
		aggregates, err := s.store.Metrics().DrillDown(ctx, accountID, source, rg)
		if err != nil {
			return nil, err
		}
		rows := make([]metrics.DrillDownRow, 0, len(aggregates))
		for _, a := range aggregates {
			rows = append(rows, metrics.DrillDownRow{
				Campaign:      a.Campaign,
				Medium:        a.Medium,
				Revenue:       a.Revenue,
				Students:      a.Students,
				AvgOrderValue: metrics.PerUnit(a.Revenue, a.Purchases),
			})
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Revenue.Cmp(rows[j].Revenue) > 0 })
		return rows, nil
	})
}

// ExportCSV renders RevenueBySource as CSV. With no data only the header line is returned.
func (s *MetricsService) ExportCSV(ctx context.Context, accountID string, rg metrics.DateRange) (string, error) {
	rows, err := s.RevenueBySource(ctx, accountID, rg)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Source,
			strconv.Itoa(r.Visitors),
			r.Revenue.StringFixed(2),
			strconv.Itoa(r.Students),
			r.ConversionRate,
			r.AvgOrderValue,
			r.RevenuePerVisitor,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// LaunchMetrics returns a launch's performance. Completed launches are served from the launch
// cache while it is fresh and the cache is rewritten on recompute.
func (s *MetricsService) LaunchMetrics(ctx context.Context, accountID, launchID string) (*metrics.LaunchMetrics, error) {
	now := s.clock.Now()
	l, err := loadLaunch(ctx, s.store, now, s.logger, accountID, launchID)
	if err != nil {
		return nil, err
	}
	return s.metricsFor(ctx, l, now, true)
}

// LiveStats always recomputes from the ledger and never touches the launch cache.
func (s *MetricsService) LiveStats(ctx context.Context, accountID, launchID string) (*metrics.LaunchMetrics, error) {
	now := s.clock.Now()
	l, err := loadLaunch(ctx, s.store, now, s.logger, accountID, launchID)
	if err != nil {
		return nil, err
	}
	return s.metricsFor(ctx, l, now, false)
}

// CompareLaunches returns side-by-side figures for 1 to MaxComparedLaunches launches. Ids the
// account does not own are skipped.
func (s *MetricsService) CompareLaunches(ctx context.Context, accountID string, ids []string) ([]metrics.LaunchComparison, error) {
	ids = dedupe(ids)
	if len(ids) < 1 || len(ids) > config.MaxComparedLaunches {
		return nil, apperror.ValidationMeta(
			fmt.Sprintf("can compare between 1 and %d launches", config.MaxComparedLaunches),
			map[string]string{"ids": strconv.Itoa(len(ids))})
	}

	marker := s.perfTracker.StartOperation("metrics:compare_launches", accountID)
	defer marker.Complete()

	launches, err := s.store.Launches().FindByIDs(ctx, accountID, ids)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	now := s.clock.Now()
	out := make([]metrics.LaunchComparison, 0, len(launches))
	for _, l := range launches {
		l.Refresh(now)
		totals, err := s.store.Metrics().LaunchTotals(ctx, accountID, l.ID)
		if err != nil {
			return nil, err
		}
		visitors, err := s.store.Metrics().VisitorsBetween(ctx, accountID, l.StartDate, l.EndDate)
		if err != nil {
			return nil, err
		}
		top, err := s.store.Metrics().LaunchTopSource(ctx, accountID, l.ID)
		if err != nil {
			return nil, err
		}
		days := l.DurationDays()
		out = append(out, metrics.LaunchComparison{
			LaunchID:       l.ID,
			Title:          l.Title,
			Status:         string(l.Status),
			Revenue:        totals.Revenue,
			Students:       totals.Students,
			ConversionRate: metrics.PercentFloat(totals.Students, visitors),
			AvgOrderValue:  metrics.PerUnit(totals.Revenue, totals.Purchases),
			TopSource:      top,
			RevenuePerDay:  metrics.PerUnit(totals.Revenue, days),
			DurationDays:   days,
		})
	}
	return out, nil
}

func (s *MetricsService) metricsFor(ctx context.Context, l *launch.Launch, now time.Time, useCache bool) (*metrics.LaunchMetrics, error) {
	marker := s.perfTracker.StartOperation("metrics:launch", l.AccountID)
	defer marker.Complete()

	totals, err := s.store.Metrics().LaunchTotals(ctx, l.AccountID, l.ID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	cacheable := useCache && l.Status == launch.StatusCompleted
	m := &metrics.LaunchMetrics{LaunchID: l.ID, Status: string(l.Status), Purchases: totals.Purchases}

	if cacheable && l.Cache.FreshAt(now, config.LaunchCacheTTL) {
		marker.AddCacheHit()
		m.Revenue = l.Cache.Revenue
		m.Students = l.Cache.Students
		m.ConversionRate = l.Cache.ConversionRate
		m.Cached = true
	} else {
		if cacheable {
			marker.AddCacheMiss()
		}
		visitors, err := s.store.Metrics().VisitorsBetween(ctx, l.AccountID, l.StartDate, l.EndDate)
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		m.Revenue = totals.Revenue
		m.Students = totals.Students
		m.Visitors = visitors
		m.ConversionRate = metrics.PercentFloat(totals.Students, visitors)

		if cacheable {
			log := s.logger.WithAccount(logging.ChannelCache, l.AccountID).With("launchId", l.ID)
			agg := &launch.CachedAggregates{Revenue: m.Revenue, Students: m.Students, ConversionRate: m.ConversionRate, CachedAt: now}
			if err := s.store.Launches().WriteCache(ctx, l.ID, agg); err != nil {
				log.Warn("Launch cache write failed", "error", err.Error())
			} else {
				l.Cache = agg
				log.Debug("Launch aggregates cached", "revenue", m.Revenue.StringFixed(2), "students", m.Students)
			}
		}
	}

	m.AvgOrderValue = metrics.PerUnit(m.Revenue, m.Purchases)
	m.RevenuePerDay = metrics.PerUnit(m.Revenue, l.DurationDays())
	if l.Goals.Revenue != nil {
		m.GoalProgress.Revenue = metrics.GoalPercent(m.Revenue, *l.Goals.Revenue)
	}
	if l.Goals.Sales != nil {
		m.GoalProgress.Sales = metrics.GoalPercent(decimal.NewFromInt(int64(m.Purchases)), decimal.NewFromInt(int64(*l.Goals.Sales)))
	}
	return m, nil
}

// cached serves key from the metrics cache or computes and stores it. Cache failures fall
// through to compute.
func cached[T any](ctx context.Context, s *MetricsService, accountID, key string, compute func() (T, error)) (T, error) {
	start := time.Now()
	var value T
	if s.cache != nil {
		hit, err := s.cache.Get(ctx, accountID, key, &value)
		if err != nil {
			s.logger.Cache().Warn("Metrics cache read failed", "key", key, "error", err.Error())
		}
		s.logger.LogCacheOperation("get", key, hit, time.Since(start), accountID)
		s.perfTracker.RecordCacheLookup(hit)
		if hit {
			return value, nil
		}
	}

	value, err := compute()
	if err != nil {
		s.logger.LogError(logging.ChannelAnalytics, key, err, accountID, nil)
		return value, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, accountID, key, value, config.DashboardCacheTTL); err != nil {
			s.logger.Cache().Warn("Metrics cache write failed", "key", key, "error", err.Error())
		}
	}
	return value, nil
}

func rangeKey(kind string, rg metrics.DateRange) string {
	return fmt.Sprintf("%s:%d:%d", kind, rg.Start.UTC().UnixMilli(), rg.End.UTC().UnixMilli())
}

func avgOrder(t metrics.Totals) decimal.Decimal {
	if t.Purchases == 0 {
		return decimal.Zero
	}
	return t.Revenue.Div(decimal.NewFromInt(int64(t.Purchases)))
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
