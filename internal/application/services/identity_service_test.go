package services

import (
	"context"
	"testing"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/repositories"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordVisitKeepsFirstTouch(t *testing.T) {
	h := newHarness(t)

	first := h.visit("vt_1", "", "google", now.Add(-2*time.Hour))
	assert.Equal(t, "google", first.FirstTouch.Source)
	assert.Nil(t, first.Email)

	again := h.visit("vt_1", "Buyer@Example.com ", "facebook", now.Add(-time.Hour))
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "google", again.FirstTouch.Source)
	require.NotNil(t, again.Email)
	assert.Equal(t, "buyer@example.com", *again.Email)

	third := h.visit("vt_1", "other@example.com", "email", now)
	assert.Equal(t, "buyer@example.com", *third.Email)

	sessions, err := h.store.Sessions().ListByVisitor(h.ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "google", sessions[0].Source)
	assert.Equal(t, "email", sessions[2].Source)
}

func TestRecordVisitSessionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ev := attribution.VisitEvent{VisitorToken: "vt_1", SessionToken: "st_1", Source: "google", OccurredAt: now}

	v, err := h.identity.RecordVisit(h.ctx, account, ev)
	require.NoError(t, err)
	_, err = h.identity.RecordVisit(h.ctx, account, ev)
	require.NoError(t, err)

	sessions, err := h.store.Sessions().ListByVisitor(h.ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestRecordVisitValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.identity.RecordVisit(h.ctx, account, attribution.VisitEvent{VisitorToken: "vt_1"})
	assert.True(t, apperror.IsValidation(err))
}

func TestIdentify(t *testing.T) {
	h := newHarness(t)

	t.Run("creates unknown visitor with empty first touch", func(t *testing.T) {
		v, err := h.identity.Identify(h.ctx, account, "vt_new", "New@Example.com")
		require.NoError(t, err)
		require.NotNil(t, v.Email)
		assert.Equal(t, "new@example.com", *v.Email)
		assert.Empty(t, v.FirstTouch.Source)
	})

	t.Run("never overwrites an email", func(t *testing.T) {
		_, err := h.identity.Identify(h.ctx, account, "vt_new", "changed@example.com")
		require.NoError(t, err)
		v, err := h.store.Visitors().FindByToken(h.ctx, account, "vt_new")
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", *v.Email)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := h.identity.Identify(h.ctx, account, "vt_new", "not-an-email")
		assert.True(t, apperror.IsValidation(err))
	})
}

// lateStore hides the visitor from the first token lookup, as if another request inserted
// it between the lookup and the insert.
type lateStore struct {
	repositories.Store
	missed *bool
}

func (s lateStore) Visitors() repositories.VisitorRepository {
	return lateVisitors{VisitorRepository: s.Store.Visitors(), missed: s.missed}
}

func (s lateStore) WithinTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repositories.Store) error {
		return fn(lateStore{Store: tx, missed: s.missed})
	})
}

type lateVisitors struct {
	repositories.VisitorRepository
	missed *bool
}

func (v lateVisitors) FindByToken(ctx context.Context, accountID, token string) (*attribution.Visitor, error) {
	if !*v.missed {
		*v.missed = true
		return nil, nil
	}
	return v.VisitorRepository.FindByToken(ctx, accountID, token)
}

func TestRecordVisitLosesCreateRace(t *testing.T) {
	h := newHarness(t)
	first := h.visit("vt_1", "", "google", now.Add(-time.Hour))

	svc := NewIdentityService(lateStore{Store: h.store, missed: new(bool)}, clock.Fixed{T: now}, logging.NewNopLogger(), h.tracker)
	again, err := svc.RecordVisit(h.ctx, account, attribution.VisitEvent{
		VisitorToken: "vt_1", SessionToken: "st_late", Source: "facebook", Email: "buyer@example.com", OccurredAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "google", again.FirstTouch.Source)
	require.NotNil(t, again.Email)
	assert.Equal(t, "buyer@example.com", *again.Email)

	sessions, err := h.store.Sessions().ListByVisitor(h.ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}
