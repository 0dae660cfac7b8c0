package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/repositories"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/security"
)

// IdentityService is the write side of the identity store: it turns tracking events into
// visitors and sessions.
type IdentityService struct {
	store       repositories.Store
	clock       clock.Clock
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewIdentityService creates a new identity service
func NewIdentityService(store repositories.Store, clk clock.Clock, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *IdentityService {
	return &IdentityService{
		store:       store,
		clock:       clk,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// RecordVisit creates the visitor on first sight, appends the session, and fills email and
// fingerprint when they are still empty. First touch is never rewritten.
func (s *IdentityService) RecordVisit(ctx context.Context, accountID string, ev attribution.VisitEvent) (*attribution.Visitor, error) {
	marker := s.perfTracker.StartOperation("identity:record_visit", accountID)
	defer marker.Complete()

	ev.VisitorToken = strings.TrimSpace(ev.VisitorToken)
	ev.SessionToken = strings.TrimSpace(ev.SessionToken)
	if ev.VisitorToken == "" || ev.SessionToken == "" {
		return nil, apperror.Validation("visitorToken and sessionToken are required")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.clock.Now()
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	email := attribution.NormalizeEmail(ev.Email)
	fingerprint := strings.TrimSpace(ev.Fingerprint)

	var visitor *attribution.Visitor
	var appended bool
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		v, created, err := s.ensureVisitor(ctx, tx, accountID, ev.VisitorToken, ev.Touch(), email, fingerprint, ev.OccurredAt)
		if err != nil {
			return err
		}
		if !created {
			if err := fillIdentity(ctx, tx, v, email, fingerprint); err != nil {
				return err
			}
		}

		appended, err = tx.Sessions().Append(ctx, &attribution.Session{
			ID:           security.GenerateULID(),
			VisitorID:    v.ID,
			SessionToken: ev.SessionToken,
			Source:       ev.Source,
			Medium:       ev.Medium,
			Campaign:     ev.Campaign,
			Content:      ev.Content,
			Term:         ev.Term,
			Referrer:     ev.Referrer,
			LandingPage:  ev.LandingPage,
			OccurredAt:   ev.OccurredAt,
		})
		if err != nil {
			return err
		}
		visitor = v
		return nil
	})
	if err != nil {
		marker.SetError(err)
		s.logger.LogError(logging.ChannelIdentity, "record_visit", err, accountID, nil)
		return nil, err
	}

	s.logger.Identity().Debug("Visit recorded", "accountId", accountID, "visitorId", visitor.ID, "newSession", appended)
	return visitor, nil
}

// Identify attaches an email to a visitor token, creating the visitor when unknown. An email
// already on file is never overwritten.
func (s *IdentityService) Identify(ctx context.Context, accountID, visitorToken, email string) (*attribution.Visitor, error) {
	visitorToken = strings.TrimSpace(visitorToken)
	email = attribution.NormalizeEmail(email)
	if visitorToken == "" {
		return nil, apperror.Validation("visitorToken is required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperror.Validation("a valid email is required")
	}

	now := s.clock.Now()
	var visitor *attribution.Visitor
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		v, created, err := s.ensureVisitor(ctx, tx, accountID, visitorToken, attribution.Touch{CapturedAt: now}, email, "", now)
		if err != nil {
			return err
		}
		if !created {
			if err := fillIdentity(ctx, tx, v, email, ""); err != nil {
				return err
			}
		}
		visitor = v
		return nil
	})
	if err != nil {
		s.logger.LogError(logging.ChannelIdentity, "identify", err, accountID, nil)
		return nil, err
	}

	s.logger.Identity().Info("Visitor identified", "accountId", accountID, "visitorId", visitor.ID, "email", logging.MaskEmail(email))
	return visitor, nil
}

func (s *IdentityService) ensureVisitor(ctx context.Context, tx repositories.Store, accountID, token string, first attribution.Touch, email, fingerprint string, at time.Time) (*attribution.Visitor, bool, error) {
	v, err := tx.Visitors().FindByToken(ctx, accountID, token)
	if err != nil {
		return nil, false, err
	}
	if v != nil {
		return v, false, nil
	}

	v = &attribution.Visitor{
		ID:           security.GenerateULID(),
		AccountID:    accountID,
		VisitorToken: token,
		FirstTouch:   first,
		CreatedAt:    at,
	}
	if email != "" {
		v.Email = &email
	}
	if fingerprint != "" {
		v.Fingerprint = &fingerprint
	}
	created, err := tx.Visitors().CreateIfAbsent(ctx, v)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create visitor: %w", err)
	}
	if !created {
		// a concurrent first hit stored the token between the lookup and the insert
		existing, err := tx.Visitors().FindByToken(ctx, accountID, token)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("visitor %s missing after insert conflict", token)
		}
		return existing, false, nil
	}
	s.logger.Identity().Info("Visitor created", "accountId", accountID, "visitorId", v.ID, "source", first.Source)
	return v, true, nil
}

func fillIdentity(ctx context.Context, tx repositories.Store, v *attribution.Visitor, email, fingerprint string) error {
	if email != "" && v.Email == nil {
		set, err := tx.Visitors().SetEmailIfEmpty(ctx, v.ID, email)
		if err != nil {
			return err
		}
		if set {
			v.Email = &email
		}
	}
	if fingerprint != "" && v.Fingerprint == nil {
		set, err := tx.Visitors().SetFingerprintIfEmpty(ctx, v.ID, fingerprint)
		if err != nil {
			return err
		}
		if set {
			v.Fingerprint = &fingerprint
		}
	}
	return nil
}
