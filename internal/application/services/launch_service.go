package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/launch"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/metrics"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/repositories"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/email/templates"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
)

const recentViewWindow = 7 * 24 * time.Hour

// ShareOptions configures public sharing of a launch.
type ShareOptions struct {
	Password  *string    `json:"password"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// ShareLink is returned when sharing is enabled.
type ShareLink struct {
	ShareToken        string     `json:"shareToken"`
	ShareURL          string     `json:"shareUrl"`
	PasswordProtected bool       `json:"passwordProtected"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// Viewer describes who opened a public share link.
type Viewer struct {
	IP        string
	UserAgent string
}

// PublicLaunch is the read-only view served behind a share token.
type PublicLaunch struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description *string                `json:"description,omitempty"`
	StartDate   time.Time              `json:"startDate"`
	EndDate     time.Time              `json:"endDate"`
	Status      launch.Status          `json:"status"`
	Metrics     *metrics.LaunchMetrics `json:"metrics"`
}

// LaunchService manages the launch lifecycle and its purchase assignment.
type LaunchService struct {
	store       repositories.Store
	metrics     *MetricsService
	mailer      email.Service
	cache       interfaces.MetricsCache
	clock       clock.Clock
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewLaunchService creates a new launch service
func NewLaunchService(store repositories.Store, metricsService *MetricsService, mailer email.Service, cache interfaces.MetricsCache, clk clock.Clock, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *LaunchService {
	return &LaunchService{
		store:       store,
		metrics:     metricsService,
		mailer:      mailer,
		cache:       cache,
		clock:       clk,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// Create stores a new launch and claims every unassigned purchase inside its range.
func (s *LaunchService) Create(ctx context.Context, accountID string, in launch.Input) (*launch.Launch, error) {
	marker := s.perfTracker.StartOperation("launch:create", accountID)
	defer marker.Complete()

	l, err := launch.New(security.GenerateULID(), accountID, in, s.clock.Now())
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	var assigned int64
	err = s.store.WithinTx(ctx, func(tx repositories.Store) error {
		if err := tx.Launches().Create(ctx, l); err != nil {
			return err
		}
		assigned, err = tx.Purchases().AssignRange(ctx, accountID, l.ID, l.StartDate, l.EndDate)
		return err
	})
	if err != nil {
		marker.SetError(err)
		s.logger.LogError(logging.ChannelLaunch, "create", err, accountID, nil)
		return nil, err
	}

	s.invalidate(ctx, accountID)
	s.logger.Launch().Info("Launch created", "accountId", accountID, "launchId", l.ID, "status", l.Status, "purchasesAssigned", assigned)
	return l, nil
}

// Get returns a launch with its status re-derived. Drift is written back.
func (s *LaunchService) Get(ctx context.Context, accountID, id string) (*launch.Launch, error) {
	return loadLaunch(ctx, s.store, s.clock.Now(), s.logger, accountID, id)
}

// List returns one page of launches with their ledger rollups.
func (s *LaunchService) List(ctx context.Context, accountID string, q launch.ListQuery) (*launch.Page, error) {
	q.Normalize(config.DefaultLaunchPageSize)

	rows, total, err := s.store.Launches().List(ctx, accountID, q)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, row := range rows {
		row.Refresh(now)
	}

	totalPages := (total + q.Limit - 1) / q.Limit
	return &launch.Page{Launches: rows, Total: total, Page: q.Page, Limit: q.Limit, TotalPages: totalPages}, nil
}

// Update applies a partial update. A date change detaches every linked purchase and
// re-links every purchase in the new range, including ones another launch held.
func (s *LaunchService) Update(ctx context.Context, accountID, id string, patch launch.Patch) (*launch.Launch, error) {
	if patch.IsEmpty() {
		return nil, apperror.Validation("no fields supplied for update")
	}

	now := s.clock.Now()
	var updated *launch.Launch
	var detached, assigned int64
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		l, err := tx.Launches().FindByID(ctx, accountID, id)
		if err != nil {
			return err
		}
		if l == nil {
			return apperror.NotFound("Launch not found")
		}

		datesChanged, err := l.Apply(patch, now)
		if err != nil {
			return err
		}
		if err := tx.Launches().Update(ctx, l); err != nil {
			return err
		}
		if datesChanged {
			if detached, err = tx.Purchases().DetachLaunch(ctx, accountID, l.ID); err != nil {
				return err
			}
			if assigned, err = tx.Purchases().RelinkRange(ctx, accountID, l.ID, l.StartDate, l.EndDate); err != nil {
				return err
			}
		}
		updated = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, accountID)
	s.logger.Launch().Info("Launch updated", "accountId", accountID, "launchId", id, "detached", detached, "assigned", assigned)
	return updated, nil
}

// Delete removes a launch. Its purchases stay in the ledger with no launch.
func (s *LaunchService) Delete(ctx context.Context, accountID, id string) error {
	var detached int64
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		var err error
		if detached, err = tx.Purchases().DetachLaunch(ctx, accountID, id); err != nil {
			return err
		}
		deleted, err := tx.Launches().Delete(ctx, accountID, id)
		if err != nil {
			return err
		}
		if !deleted {
			return apperror.NotFound("Launch not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, accountID)
	s.logger.Launch().Info("Launch deleted", "accountId", accountID, "launchId", id, "purchasesDetached", detached)
	return nil
}

// Archive moves a launch to the terminal archived status.
func (s *LaunchService) Archive(ctx context.Context, accountID, id string) (*launch.Launch, error) {
	l, err := s.find(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.store.Launches().SetStatus(ctx, accountID, id, launch.StatusArchived, now); err != nil {
		return nil, err
	}
	l.Status = launch.StatusArchived
	l.UpdatedAt = now

	s.invalidate(ctx, accountID)
	s.logger.Launch().Info("Launch archived", "accountId", accountID, "launchId", id)
	return l, nil
}

// Duplicate copies title, description, and goals into a new launch starting now.
func (s *LaunchService) Duplicate(ctx context.Context, accountID, id string) (*launch.Launch, error) {
	src, err := s.find(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return s.Create(ctx, accountID, launch.Input{
		Title:       src.Title + " (Copy)",
		Description: src.Description,
		StartDate:   now,
		EndDate:     now.Add(config.DuplicateLaunchSpan),
		RevenueGoal: src.Goals.Revenue,
		SalesGoal:   src.Goals.Sales,
	})
}

// EnableShare issues a fresh share token. A password is stored only as a bcrypt hash.
func (s *LaunchService) EnableShare(ctx context.Context, accountID, id string, opts ShareOptions) (*ShareLink, error) {
	if _, err := s.find(ctx, accountID, id); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(now) {
		return nil, apperror.Validation("share expiry must be in the future")
	}

	token, err := security.GenerateSecureToken(config.ShareTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate share token: %w", err)
	}
	share := &launch.Share{Token: token}
	if opts.ExpiresAt != nil {
		expires := opts.ExpiresAt.UTC()
		share.ExpiresAt = &expires
	}
	if opts.Password != nil && *opts.Password != "" {
		hash, err := security.HashPassword(*opts.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash share password: %w", err)
		}
		share.PasswordHash = &hash
	}

	if err := s.store.Launches().SaveShare(ctx, accountID, id, share, now); err != nil {
		return nil, err
	}

	s.logger.Launch().Info("Launch sharing enabled", "accountId", accountID, "launchId", id, "passwordProtected", share.HasPassword())
	return &ShareLink{
		ShareToken:        token,
		ShareURL:          shareURL(token),
		PasswordProtected: share.HasPassword(),
		ExpiresAt:         share.ExpiresAt,
	}, nil
}

// DisableShare clears the share token so public links stop resolving.
func (s *LaunchService) DisableShare(ctx context.Context, accountID, id string) error {
	if _, err := s.find(ctx, accountID, id); err != nil {
		return err
	}
	if err := s.store.Launches().SaveShare(ctx, accountID, id, nil, s.clock.Now()); err != nil {
		return err
	}
	s.logger.Launch().Info("Launch sharing disabled", "accountId", accountID, "launchId", id)
	return nil
}

// GetPublicByToken resolves a share token. Each gate fails with its own error: unknown token,
// expired link, missing password, wrong password. A successful read is logged as a view.
func (s *LaunchService) GetPublicByToken(ctx context.Context, token, password string, viewer Viewer) (*PublicLaunch, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.NotFound("Launch not found")
	}
	l, err := s.store.Launches().FindByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if l == nil || l.Share == nil {
		return nil, apperror.NotFound("Launch not found")
	}

	now := s.clock.Now()
	if l.Share.Expired(now) {
		return nil, apperror.ShareExpired()
	}
	if l.Share.HasPassword() {
		if password == "" {
			return nil, apperror.PasswordRequired()
		}
		if !security.CheckPassword(*l.Share.PasswordHash, password) {
			return nil, apperror.InvalidPassword()
		}
	}

	if l.Refresh(now) {
		if err := s.store.Launches().SetStatus(ctx, l.AccountID, l.ID, l.Status, now); err != nil {
			return nil, err
		}
	}

	m, err := s.metrics.metricsFor(ctx, l, now, true)
	if err != nil {
		return nil, err
	}

	view := &launch.View{ID: security.GenerateULID(), LaunchID: l.ID, ViewerIP: viewer.IP, UserAgent: viewer.UserAgent, ViewedAt: now}
	if err := s.store.Launches().RecordView(ctx, view); err != nil {
		s.logger.Launch().Warn("Failed to record share view", "launchId", l.ID, "error", err.Error())
	}

	return &PublicLaunch{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		StartDate:   l.StartDate,
		EndDate:     l.EndDate,
		Status:      l.Status,
		Metrics:     m,
	}, nil
}

// ShareViews summarises the public view log of a launch.
func (s *LaunchService) ShareViews(ctx context.Context, accountID, id string) (*launch.ViewStats, error) {
	if _, err := s.find(ctx, accountID, id); err != nil {
		return nil, err
	}
	return s.store.Launches().ViewStats(ctx, id, s.clock.Now().Add(-recentViewWindow))
}

// SendRecap mails the launch's metrics to the given address.
func (s *LaunchService) SendRecap(ctx context.Context, accountID, id, to string) error {
	to = attribution.NormalizeEmail(to)
	if !strings.Contains(to, "@") {
		return apperror.Validation("a valid recipient email is required")
	}

	l, err := loadLaunch(ctx, s.store, s.clock.Now(), s.logger, accountID, id)
	if err != nil {
		return err
	}
	m, err := s.metrics.metricsFor(ctx, l, s.clock.Now(), true)
	if err != nil {
		return err
	}

	props := templates.LaunchRecapProps{
		LaunchTitle:    l.Title,
		DateRange:      fmt.Sprintf("%s to %s", l.StartDate.Format("Jan 2, 2006"), l.EndDate.Format("Jan 2, 2006")),
		Status:         string(l.Status),
		Revenue:        m.Revenue.StringFixed(2),
		Students:       m.Students,
		Purchases:      m.Purchases,
		ConversionRate: fmt.Sprintf("%.2f", m.ConversionRate),
		AvgOrderValue:  m.AvgOrderValue,
		RevenuePerDay:  m.RevenuePerDay,
	}
	if l.Goals.Revenue != nil {
		props.RevenueGoal = l.Goals.Revenue.StringFixed(2)
	}
	if l.Goals.Sales != nil {
		props.SalesGoal = fmt.Sprintf("%d", *l.Goals.Sales)
	}
	if l.Share != nil && !l.Share.Expired(s.clock.Now()) {
		props.ShareURL = shareURL(l.Share.Token)
	}

	if err := s.mailer.SendLaunchRecap(ctx, to, props); err != nil {
		s.logger.LogError(logging.ChannelLaunch, "send_recap", err, accountID, map[string]any{"launchId": id})
		return err
	}
	return nil
}

func (s *LaunchService) find(ctx context.Context, accountID, id string) (*launch.Launch, error) {
	l, err := s.store.Launches().FindByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apperror.NotFound("Launch not found")
	}
	return l, nil
}

func (s *LaunchService) invalidate(ctx context.Context, accountID string) {
	invalidateAccount(ctx, s.cache, s.logger, accountID)
}

// loadLaunch reads a launch owned by accountID and writes back any status drift.
func loadLaunch(ctx context.Context, store repositories.Store, now time.Time, logger *logging.ChanneledLogger, accountID, id string) (*launch.Launch, error) {
	l, err := store.Launches().FindByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apperror.NotFound("Launch not found")
	}
	if l.Refresh(now) {
		if err := store.Launches().SetStatus(ctx, accountID, id, l.Status, now); err != nil {
			return nil, err
		}
		logger.Launch().Debug("Launch status corrected on read", "launchId", id, "status", l.Status)
	}
	return l, nil
}

func shareURL(token string) string {
	return strings.TrimRight(config.PublicBaseURL, "/") + "/share/" + token
}
