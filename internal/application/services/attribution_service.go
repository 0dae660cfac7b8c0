// Package services provides application-level services that orchestrate
// business logic and coordinate between repositories and domain entities.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/metrics"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/repositories"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
)

// BulkReattributeResult summarises a re-attribution pass over unmatched purchases.
type BulkReattributeResult struct {
	Checked int `json:"checked"`
	Matched int `json:"matched"`
}

// AttributionService resolves purchases to visitors and records them in the ledger.
type AttributionService struct {
	store       repositories.Store
	cache       interfaces.MetricsCache
	clock       clock.Clock
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewAttributionService creates a new attribution service
func NewAttributionService(store repositories.Store, cache interfaces.MetricsCache, clk clock.Clock, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AttributionService {
	return &AttributionService{
		store:       store,
		cache:       cache,
		clock:       clk,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// Attribute records a purchase and ties it to the visitor that originated it. Email match
// wins; the fingerprint is only consulted when email finds nobody. The purchase write and
// its launch assignment commit together.
func (s *AttributionService) Attribute(ctx context.Context, accountID string, in attribution.NormalizedPurchase) (*attribution.Result, error) {
	marker := s.perfTracker.StartOperation("attribution:attribute", accountID)
	defer marker.Complete()

	purchase, err := s.newPurchase(accountID, in)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	fingerprint := strings.TrimSpace(in.DeviceFingerprint)
	now := s.clock.Now()

	result := &attribution.Result{Status: attribution.StatusUnmatched, Method: attribution.MatchNone}
	err = s.store.WithinTx(ctx, func(tx repositories.Store) error {
		visitor, method, err := s.resolveVisitor(ctx, tx, accountID, purchase.Email, fingerprint, now)
		if err != nil {
			return err
		}
		if visitor != nil {
			first, last, err := touchesFor(ctx, tx, visitor)
			if err != nil {
				return err
			}
			purchase.Match(visitor.ID, first, last)
			result.Method = method
		}

		id, err := tx.Purchases().Upsert(ctx, purchase)
		if err != nil {
			return err
		}
		// A redelivery may have kept an earlier match or refund; report what was stored.
		stored, err := tx.Purchases().FindByID(ctx, accountID, id)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("purchase %s missing after upsert", id)
		}
		if stored.Status == attribution.StatusMatched && result.Method == attribution.MatchNone {
			result.Method = attribution.MatchExisting
		}
		purchase = stored

		covering, err := tx.Launches().FindCovering(ctx, accountID, purchase.PurchasedAt)
		if err != nil {
			return err
		}
		if covering != nil {
			linked, err := tx.Purchases().AssignLaunch(ctx, accountID, id, covering.ID)
			if err != nil {
				return err
			}
			if linked {
				result.LaunchID = &covering.ID
			}
		}
		if result.LaunchID == nil {
			result.LaunchID = purchase.LaunchID
		}
		return nil
	})
	if err != nil {
		marker.SetError(err)
		s.logger.LogError(logging.ChannelAttribution, "attribute", err, accountID,
			map[string]any{"platformPurchaseId": purchase.PlatformPurchaseID})
		return nil, err
	}

	result.PurchaseID = purchase.ID
	result.Status = purchase.Status
	result.VisitorID = purchase.VisitorID
	result.FirstTouch = purchase.FirstTouch
	result.LastTouch = purchase.LastTouch

	s.perfTracker.RecordAttribution(outcomeLabel(result.Method))
	s.invalidate(ctx, accountID)
	s.logger.Attribution().Info("Purchase attributed",
		"accountId", accountID, "purchaseId", result.PurchaseID, "status", result.Status,
		"method", result.Method, "launchLinked", result.LaunchID != nil)
	return result, nil
}

// Reattribute retries the email lookup for an unmatched purchase. The fingerprint fallback
// is not repeated.
func (s *AttributionService) Reattribute(ctx context.Context, accountID, purchaseID string) (*attribution.ReattributeResult, error) {
	var result *attribution.ReattributeResult
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		var err error
		result, err = s.reattribute(ctx, tx, accountID, purchaseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Outcome == attribution.ReattributeMatched {
		s.invalidate(ctx, accountID)
	}
	return result, nil
}

// ReattributeUnmatched runs Reattribute over every unmatched purchase of the account.
func (s *AttributionService) ReattributeUnmatched(ctx context.Context, accountID string) (*BulkReattributeResult, error) {
	marker := s.perfTracker.StartOperation("attribution:reattribute_unmatched", accountID)
	defer marker.Complete()

	unmatched, err := s.store.Purchases().ListUnmatched(ctx, accountID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	out := &BulkReattributeResult{}
	for _, p := range unmatched {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var r *attribution.ReattributeResult
		err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
			var err error
			r, err = s.reattribute(ctx, tx, accountID, p.ID)
			return err
		})
		if err != nil {
			marker.SetError(err)
			return out, err
		}
		out.Checked++
		if r.Outcome == attribution.ReattributeMatched {
			out.Matched++
		}
	}

	if out.Matched > 0 {
		s.invalidate(ctx, accountID)
	}
	s.logger.Attribution().Info("Bulk re-attribution finished", "accountId", accountID, "checked", out.Checked, "matched", out.Matched)
	return out, nil
}

func (s *AttributionService) reattribute(ctx context.Context, tx repositories.Store, accountID, purchaseID string) (*attribution.ReattributeResult, error) {
	p, err := tx.Purchases().FindByID(ctx, accountID, purchaseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperror.NotFound("Purchase not found")
	}

	result := &attribution.ReattributeResult{PurchaseID: p.ID}
	if p.Status == attribution.StatusMatched {
		result.Outcome = attribution.ReattributeMatched
		result.VisitorID, result.FirstTouch, result.LastTouch = p.VisitorID, p.FirstTouch, p.LastTouch
		return result, nil
	}

	visitor, err := tx.Visitors().FindByEmail(ctx, accountID, p.Email)
	if err != nil {
		return nil, err
	}
	if visitor == nil {
		result.Outcome = attribution.ReattributeStillUnmatched
		return result, nil
	}

	first, last, err := touchesFor(ctx, tx, visitor)
	if err != nil {
		return nil, err
	}
	p.Match(visitor.ID, first, last)
	if err := tx.Purchases().UpdateAttribution(ctx, p); err != nil {
		return nil, err
	}

	result.Outcome = attribution.ReattributeMatched
	result.VisitorID, result.FirstTouch, result.LastTouch = p.VisitorID, p.FirstTouch, p.LastTouch
	s.perfTracker.RecordAttribution(performance.OutcomeMatchedEmail)
	s.logger.Attribution().Info("Purchase re-attributed", "accountId", accountID, "purchaseId", p.ID, "visitorId", visitor.ID)
	return result, nil
}

// MatchRate is round(matched / total * 100), 0 for an empty ledger.
func (s *AttributionService) MatchRate(ctx context.Context, accountID string) (*metrics.MatchRate, error) {
	total, matched, err := s.store.Purchases().CountByStatus(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &metrics.MatchRate{Total: total, Matched: matched, Rate: metrics.RoundedRate(matched, total)}, nil
}

// RecordRefund zeroes the amount of an existing purchase.
func (s *AttributionService) RecordRefund(ctx context.Context, accountID, platform, platformPurchaseID string) error {
	p, ok := attribution.ParsePlatform(platform)
	if !ok {
		return apperror.Validation("unknown platform: " + platform)
	}
	platformPurchaseID = strings.TrimSpace(platformPurchaseID)
	if platformPurchaseID == "" {
		return apperror.Validation("platformPurchaseId is required")
	}

	found, err := s.store.Purchases().ZeroAmount(ctx, accountID, p, platformPurchaseID)
	if err != nil {
		s.logger.LogError(logging.ChannelAttribution, "refund", err, accountID, nil)
		return err
	}
	if !found {
		return apperror.NotFound("Purchase not found")
	}

	s.invalidate(ctx, accountID)
	s.logger.Attribution().Info("Refund recorded", "accountId", accountID, "platform", p, "platformPurchaseId", platformPurchaseID)
	return nil
}

func (s *AttributionService) newPurchase(accountID string, in attribution.NormalizedPurchase) (*attribution.Purchase, error) {
	email := attribution.NormalizeEmail(in.Email)
	if email == "" {
		return nil, apperror.Validation("email is required")
	}
	platform, ok := attribution.ParsePlatform(in.Platform)
	if !ok {
		return nil, apperror.Validation("unknown platform: " + in.Platform)
	}
	ppid := strings.TrimSpace(in.PlatformPurchaseID)
	if ppid == "" {
		return nil, apperror.Validation("platformPurchaseId is required")
	}
	if in.Amount.IsNegative() {
		return nil, apperror.Validation("amount must not be negative")
	}
	if in.PurchasedAt.IsZero() {
		return nil, apperror.Validation("purchasedAt is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = config.DefaultCurrency
	}

	return &attribution.Purchase{
		ID:                 security.GenerateULID(),
		AccountID:          accountID,
		Email:              email,
		Amount:             in.Amount,
		Currency:           currency,
		CourseName:         strings.TrimSpace(in.CourseName),
		Platform:           platform,
		PlatformPurchaseID: ppid,
		Status:             attribution.StatusUnmatched,
		PurchasedAt:        in.PurchasedAt.UTC(),
		CreatedAt:          s.clock.Now(),
	}, nil
}

func (s *AttributionService) resolveVisitor(ctx context.Context, tx repositories.Store, accountID, email, fingerprint string, now time.Time) (*attribution.Visitor, attribution.MatchMethod, error) {
	v, err := tx.Visitors().FindByEmail(ctx, accountID, email)
	if err != nil {
		return nil, attribution.MatchNone, err
	}
	if v != nil {
		return v, attribution.MatchByEmail, nil
	}
	if fingerprint == "" {
		return nil, attribution.MatchNone, nil
	}

	since := now.Add(-time.Duration(config.FingerprintWindowHours) * time.Hour)
	v, err = tx.Visitors().FindByFingerprint(ctx, accountID, fingerprint, since)
	if err != nil {
		return nil, attribution.MatchNone, err
	}
	if v != nil {
		return v, attribution.MatchByFingerprint, nil
	}
	return nil, attribution.MatchNone, nil
}

// touchesFor returns the visitor's first touch and the latest session as last touch,
// falling back to the first touch when there are no sessions.
func touchesFor(ctx context.Context, tx repositories.Store, v *attribution.Visitor) (attribution.Touch, attribution.Touch, error) {
	sessions, err := tx.Sessions().ListByVisitor(ctx, v.ID)
	if err != nil {
		return attribution.Touch{}, attribution.Touch{}, err
	}
	last := v.FirstTouch
	var latest *attribution.Session
	for _, sess := range sessions {
		if latest == nil || !sess.OccurredAt.Before(latest.OccurredAt) {
			latest = sess
		}
	}
	if latest != nil {
		last = latest.Touch()
	}
	return v.FirstTouch, last, nil
}

func outcomeLabel(m attribution.MatchMethod) string {
	switch m {
	case attribution.MatchByEmail:
		return performance.OutcomeMatchedEmail
	case attribution.MatchByFingerprint:
		return performance.OutcomeMatchedFingerprint
	case attribution.MatchExisting:
		return performance.OutcomeMatchedExisting
	default:
		return performance.OutcomeUnmatched
	}
}

func (s *AttributionService) invalidate(ctx context.Context, accountID string) {
	invalidateAccount(ctx, s.cache, s.logger, accountID)
}

func invalidateAccount(ctx context.Context, cache interfaces.MetricsCache, logger *logging.ChanneledLogger, accountID string) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateAccount(ctx, accountID); err != nil {
		logger.Cache().Warn("Metrics cache invalidation failed", "accountId", accountID, "error", err.Error())
	}
}
