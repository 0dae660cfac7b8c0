// Package metrics holds the dashboard read models and the arithmetic used to derive them.
package metrics

import (
	"math"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/shopspring/decimal"
)

const (
	// UnmatchedSource labels purchases and visitors without a first-touch source.
	UnmatchedSource = "unmatched"
	NoCampaign      = "no_campaign"
	NoMedium        = "none"
)

var hundred = decimal.NewFromInt(100)

// DateRange is a half-open [Start, End) window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate rejects empty or inverted ranges.
func (r DateRange) Validate() error {
	if !r.End.After(r.Start) {
		return apperror.Validation("range end must be after range start")
	}
	return nil
}

// Previous is the immediately preceding range of identical duration.
func (r DateRange) Previous() DateRange {
	d := r.End.Sub(r.Start)
	return DateRange{Start: r.Start.Add(-d), End: r.Start}
}

// Totals is a raw ledger rollup.
type Totals struct {
	Revenue   decimal.Decimal
	Students  int
	Purchases int
}

// SourceAggregate is a ledger rollup for one first-touch source.
type SourceAggregate struct {
	Source    string
	Revenue   decimal.Decimal
	Students  int
	Purchases int
}

// CampaignAggregate is a ledger rollup for one (campaign, medium) pair.
type CampaignAggregate struct {
	Campaign  string
	Medium    string
	Revenue   decimal.Decimal
	Students  int
	Purchases int
}

// Trends are period-over-period percentage deltas.
type Trends struct {
	Revenue       float64 `json:"revenue"`
	Students      float64 `json:"students"`
	Purchases     float64 `json:"purchases"`
	AvgOrderValue float64 `json:"avgOrderValue"`
}

// Summary is the dashboard headline.
type Summary struct {
	TotalRevenue   decimal.Decimal `json:"totalRevenue"`
	TotalStudents  int             `json:"totalStudents"`
	TotalPurchases int             `json:"totalPurchases"`
	AvgOrderValue  string          `json:"avgOrderValue"`
	Trends         Trends          `json:"trends"`
}

// SourceRevenue is one row of the per-source breakdown.
type SourceRevenue struct {
	Source            string          `json:"source"`
	Visitors          int             `json:"visitors"`
	Revenue           decimal.Decimal `json:"revenue"`
	Students          int             `json:"students"`
	ConversionRate    string          `json:"conversionRate"`
	AvgOrderValue     string          `json:"avgOrderValue"`
	RevenuePerVisitor string          `json:"revenuePerVisitor"`
}

// RecentPurchase is one row of the recent purchases feed.
type RecentPurchase struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	CourseName  string          `json:"courseName"`
	Platform    string          `json:"platform"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Source      string          `json:"source"`
	Status      string          `json:"attributionStatus"`
	LaunchID    *string         `json:"launchId,omitempty"`
	PurchasedAt time.Time       `json:"purchasedAt"`
}

// DrillDownRow is one (campaign, medium) row within a source.
type DrillDownRow struct {
	Campaign      string          `json:"campaign"`
	Medium        string          `json:"medium"`
	Revenue       decimal.Decimal `json:"revenue"`
	Students      int             `json:"students"`
	AvgOrderValue string          `json:"avgOrderValue"`
}

// GoalProgress is percent-of-goal; nil when no goal is set.
type GoalProgress struct {
	Revenue *float64 `json:"revenue"`
	Sales   *float64 `json:"sales"`
}

// LaunchMetrics is the per-launch performance view.
type LaunchMetrics struct {
	LaunchID       string          `json:"launchId"`
	Status         string          `json:"status"`
	Revenue        decimal.Decimal `json:"revenue"`
	Students       int             `json:"students"`
	Purchases      int             `json:"purchases"`
	Visitors       int             `json:"visitors,omitempty"` // zero when served from cache
	ConversionRate float64         `json:"conversionRate"`
	AvgOrderValue  string          `json:"avgOrderValue"`
	RevenuePerDay  string          `json:"revenuePerDay"`
	GoalProgress   GoalProgress    `json:"goalProgress"`
	Cached         bool            `json:"cached"`
}

// LaunchComparison is one column of a side-by-side launch comparison.
type LaunchComparison struct {
	LaunchID       string          `json:"launchId"`
	Title          string          `json:"title"`
	Status         string          `json:"status"`
	Revenue        decimal.Decimal `json:"revenue"`
	Students       int             `json:"students"`
	ConversionRate float64         `json:"conversionRate"`
	AvgOrderValue  string          `json:"avgOrderValue"`
	TopSource      string          `json:"topSource"`
	RevenuePerDay  string          `json:"revenuePerDay"`
	DurationDays   int             `json:"durationDays"`
}

// MatchRate is the share of an account's purchases tied to a visitor.
type MatchRate struct {
	Total   int `json:"total"`
	Matched int `json:"matched"`
	Rate    int `json:"matchRate"`
}

// Trend is ((current - previous) / previous) * 100 rounded to one decimal, 0 when previous is 0.
func Trend(current, previous decimal.Decimal) float64 {
	if previous.IsZero() {
		return 0
	}
	v, _ := current.Sub(previous).Div(previous).Mul(hundred).Round(1).Float64()
	return v
}

// PerUnit divides an amount by a count as a two-decimal string, "0.00" for a zero count.
func PerUnit(amount decimal.Decimal, count int) string {
	if count <= 0 {
		return "0.00"
	}
	return amount.Div(decimal.NewFromInt(int64(count))).StringFixed(2)
}

// Percent is part/whole*100 as a two-decimal string, "0.00" for a zero whole.
func Percent(part, whole int) string {
	if whole <= 0 {
		return "0.00"
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).StringFixed(2)
}

// PercentFloat is Percent as a float rounded to two decimals.
func PercentFloat(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	v, _ := decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(2).Float64()
	return v
}

// RoundedRate is round(part/whole*100) as an integer, 0 for a zero whole.
func RoundedRate(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

// GoalPercent is achieved/goal*100 rounded to one decimal, nil without a positive goal.
func GoalPercent(achieved, goal decimal.Decimal) *float64 {
	if !goal.IsPositive() {
		return nil
	}
	v, _ := achieved.Div(goal).Mul(hundred).Round(1).Float64()
	return &v
}
