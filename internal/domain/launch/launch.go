// Package launch defines time-boxed marketing campaigns and their status state machine.
package launch

import (
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle position of a launch.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// ParseStatus validates a status filter value.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusUpcoming, StatusActive, StatusCompleted, StatusArchived:
		return st, true
	}
	return "", false
}

// DeriveStatus is the pure time-based status: upcoming before start, completed after end.
func DeriveStatus(start, end, now time.Time) Status {
	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.After(end):
		return StatusCompleted
	default:
		return StatusActive
	}
}

// Goals are optional performance targets.
type Goals struct {
	Revenue *decimal.Decimal `json:"revenueGoal,omitempty"`
	Sales   *int             `json:"salesGoal,omitempty"`
}

// Share holds public sharing metadata. PasswordHash is a bcrypt hash, never the password.
type Share struct {
	Token        string     `json:"shareToken"`
	PasswordHash *string    `json:"-"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// HasPassword reports whether the share is password protected.
func (s *Share) HasPassword() bool {
	return s != nil && s.PasswordHash != nil && *s.PasswordHash != ""
}

// Expired reports whether the share link is past its expiry.
func (s *Share) Expired(now time.Time) bool {
	return s != nil && s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// CachedAggregates are ledger aggregates persisted for completed launches.
type CachedAggregates struct {
	Revenue        decimal.Decimal `json:"revenue"`
	Students       int             `json:"students"`
	ConversionRate float64         `json:"conversionRate"`
	CachedAt       time.Time       `json:"cachedAt"`
}

// FreshAt reports whether the cache is younger than ttl at now.
func (c *CachedAggregates) FreshAt(now time.Time, ttl time.Duration) bool {
	return c != nil && now.Sub(c.CachedAt) < ttl
}

// Launch is a time-boxed campaign owned by an account.
type Launch struct {
	ID          string            `json:"id"`
	AccountID   string            `json:"accountId"`
	Title       string            `json:"title"`
	Description *string           `json:"description,omitempty"`
	StartDate   time.Time         `json:"startDate"`
	EndDate     time.Time         `json:"endDate"`
	Goals       Goals             `json:"goals"`
	Status      Status            `json:"status"`
	Share       *Share            `json:"share,omitempty"`
	Cache       *CachedAggregates `json:"cache,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Input carries the caller-supplied fields for a new launch.
type Input struct {
	Title       string           `json:"title" binding:"required"`
	Description *string          `json:"description"`
	StartDate   time.Time        `json:"startDate" binding:"required"`
	EndDate     time.Time        `json:"endDate" binding:"required"`
	RevenueGoal *decimal.Decimal `json:"revenueGoal"`
	SalesGoal   *int             `json:"salesGoal"`
}

// New validates input and returns a launch with its status derived from now.
func New(id, accountID string, in Input, now time.Time) (*Launch, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.Validation("title is required")
	}
	if err := validateRange(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	if err := validateGoals(in.RevenueGoal, in.SalesGoal); err != nil {
		return nil, err
	}

	start, end := in.StartDate.UTC(), in.EndDate.UTC()
	return &Launch{
		ID:          id,
		AccountID:   accountID,
		Title:       title,
		Description: in.Description,
		StartDate:   start,
		EndDate:     end,
		Goals:       Goals{Revenue: in.RevenueGoal, Sales: in.SalesGoal},
		Status:      DeriveStatus(start, end, now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func validateRange(start, end time.Time) error {
	if !end.After(start) {
		return apperror.Validation("end date must be after start date")
	}
	return nil
}

func validateGoals(revenue *decimal.Decimal, sales *int) error {
	if revenue != nil && revenue.IsNegative() {
		return apperror.Validation("revenue goal must not be negative")
	}
	if sales != nil && *sales < 0 {
		return apperror.Validation("sales goal must not be negative")
	}
	return nil
}

// Refresh re-derives status from the dates. Archived is terminal and never changes.
// It reports whether the status moved.
func (l *Launch) Refresh(now time.Time) bool {
	if l.Status == StatusArchived {
		return false
	}
	next := DeriveStatus(l.StartDate, l.EndDate, now)
	if next == l.Status {
		return false
	}
	l.Status = next
	return true
}

// DurationDays is the number of started days the launch spans, never below 1.
func (l *Launch) DurationDays() int {
	days := int(l.EndDate.Sub(l.StartDate).Hours() / 24)
	if l.EndDate.Sub(l.StartDate) > time.Duration(days)*24*time.Hour {
		days++
	}
	if days < 1 {
		return 1
	}
	return days
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	StartDate   *time.Time       `json:"startDate"`
	EndDate     *time.Time       `json:"endDate"`
	RevenueGoal *decimal.Decimal `json:"revenueGoal"`
	SalesGoal   *int             `json:"salesGoal"`
}

// IsEmpty reports whether no field was supplied.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.StartDate == nil &&
		p.EndDate == nil && p.RevenueGoal == nil && p.SalesGoal == nil
}

// Apply validates and applies the patch. It reports whether the date range changed.
func (l *Launch) Apply(p Patch, now time.Time) (bool, error) {
	if p.IsEmpty() {
		return false, apperror.Validation("no fields supplied for update")
	}

	start, end := l.StartDate, l.EndDate
	if p.StartDate != nil {
		start = p.StartDate.UTC()
	}
	if p.EndDate != nil {
		end = p.EndDate.UTC()
	}
	if err := validateRange(start, end); err != nil {
		return false, err
	}
	if err := validateGoals(p.RevenueGoal, p.SalesGoal); err != nil {
		return false, err
	}

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return false, apperror.Validation("title must not be empty")
		}
		l.Title = title
	}
	if p.Description != nil {
		l.Description = p.Description
	}
	if p.RevenueGoal != nil {
		l.Goals.Revenue = p.RevenueGoal
	}
	if p.SalesGoal != nil {
		l.Goals.Sales = p.SalesGoal
	}

	datesChanged := !start.Equal(l.StartDate) || !end.Equal(l.EndDate)
	l.StartDate, l.EndDate = start, end
	if datesChanged {
		// aggregates were computed for the old window
		l.Cache = nil
	}
	l.Refresh(now)
	l.UpdatedAt = now
	return datesChanged, nil
}

// StatusChange is one row moved by the scheduler.
type StatusChange struct {
	LaunchID  string
	AccountID string
	Title     string
	To        Status
}

// SortField selects the list ordering column.
type SortField string

const (
	SortByStart   SortField = "start"
	SortByEnd     SortField = "end"
	SortByCreated SortField = "created"
)

// ListQuery configures a paged launch listing.
type ListQuery struct {
	Page       int
	Limit      int
	Status     *Status
	SortField  SortField
	Descending bool
}

// Normalize clamps paging and fills defaults.
func (q *ListQuery) Normalize(defaultLimit int) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	switch q.SortField {
	case SortByStart, SortByEnd, SortByCreated:
	default:
		q.SortField = SortByCreated
	}
}

// Offset is the row offset for the current page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// ListRow is a launch with its ledger rollup.
type ListRow struct {
	*Launch
	PurchaseCount int             `json:"purchaseCount"`
	Revenue       decimal.Decimal `json:"revenue"`
}

// Page is a paged listing result.
type Page struct {
	Launches   []*ListRow `json:"launches"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}

// View is one public share view.
type View struct {
	ID        string    `json:"id"`
	LaunchID  string    `json:"launchId"`
	ViewerIP  string    `json:"viewerIp,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	ViewedAt  time.Time `json:"viewedAt"`
}

// ViewStats summarises the share view log.
type ViewStats struct {
	Total        int        `json:"total"`
	Last7Days    int        `json:"last7Days"`
	LastViewedAt *time.Time `json:"lastViewedAt,omitempty"`
}
