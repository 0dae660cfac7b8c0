package services

import (
	"testing"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeByEmail(t *testing.T) {
	h := newHarness(t)
	v := h.visit("vt_1", "buyer@example.com", "google", now.Add(-48*time.Hour))
	h.visit("vt_1", "", "newsletter", now.Add(-time.Hour))

	res := h.buy("Buyer@Example.com", 199, now)

	assert.Equal(t, attribution.StatusMatched, res.Status)
	assert.Equal(t, attribution.MatchByEmail, res.Method)
	require.NotNil(t, res.VisitorID)
	assert.Equal(t, v.ID, *res.VisitorID)
	require.NotNil(t, res.FirstTouch)
	require.NotNil(t, res.LastTouch)
	assert.Equal(t, "google", res.FirstTouch.Source)
	assert.Equal(t, "newsletter", res.LastTouch.Source)

	p, err := h.store.Purchases().FindByID(h.ctx, account, res.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, "199", p.Amount.String())
}

func TestAttributeLastTouchFallsBackToFirstTouch(t *testing.T) {
	h := newHarness(t)
	v, err := h.identity.Identify(h.ctx, account, "vt_1", "buyer@example.com")
	require.NoError(t, err)

	res := h.buy("buyer@example.com", 50, now)

	require.Equal(t, attribution.StatusMatched, res.Status)
	require.NotNil(t, res.LastTouch)
	assert.Equal(t, v.FirstTouch.Source, res.LastTouch.Source)
	assert.True(t, res.LastTouch.CapturedAt.Equal(res.FirstTouch.CapturedAt))
}

func TestAttributeEmailWinsOverFingerprint(t *testing.T) {
	h := newHarness(t)
	byEmail := h.visit("vt_email", "buyer@example.com", "google", now.Add(-72*time.Hour))
	_, err := h.identity.RecordVisit(h.ctx, account, attribution.VisitEvent{
		VisitorToken: "vt_fp", SessionToken: "st_fp", Source: "tiktok", Fingerprint: "fp_1", OccurredAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	res, err := h.attribution.Attribute(h.ctx, account, attribution.NormalizedPurchase{
		Email: "buyer@example.com", Amount: decimal.NewFromInt(10), Platform: "kajabi",
		PlatformPurchaseID: "k1", PurchasedAt: now, DeviceFingerprint: "fp_1",
	})
	require.NoError(t, err)
	assert.Equal(t, attribution.MatchByEmail, res.Method)
	assert.Equal(t, byEmail.ID, *res.VisitorID)
}

func TestAttributeFingerprintWindow(t *testing.T) {
	h := newHarness(t)
	_, err := h.identity.RecordVisit(h.ctx, account, attribution.VisitEvent{
		VisitorToken: "vt_recent", SessionToken: "st_1", Source: "tiktok", Fingerprint: "fp_recent", OccurredAt: now.Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	_, err = h.identity.RecordVisit(h.ctx, account, attribution.VisitEvent{
		VisitorToken: "vt_old", SessionToken: "st_2", Source: "bing", Fingerprint: "fp_old", OccurredAt: now.Add(-30 * time.Hour),
	})
	require.NoError(t, err)

	tests := []struct {
		name        string
		fingerprint string
		want        attribution.Status
		method      attribution.MatchMethod
	}{
		{"inside window", "fp_recent", attribution.StatusMatched, attribution.MatchByFingerprint},
		{"outside window", "fp_old", attribution.StatusUnmatched, attribution.MatchNone},
		{"no fingerprint", "", attribution.StatusUnmatched, attribution.MatchNone},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.attribution.Attribute(h.ctx, account, attribution.NormalizedPurchase{
				Email: "stranger@example.com", Amount: decimal.NewFromInt(10), Platform: "podia",
				PlatformPurchaseID: "pd" + string(rune('0'+i)), PurchasedAt: now, DeviceFingerprint: tt.fingerprint,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.method, res.Method)
			if tt.want == attribution.StatusUnmatched {
				assert.Nil(t, res.VisitorID)
				assert.Nil(t, res.FirstTouch)
			}
		})
	}
}

func TestAttributeAssignsCoveringLaunch(t *testing.T) {
	h := newHarness(t)
	l := h.newLaunch("Spring", now.Add(-day), now.Add(day))

	inside := h.buy("a@example.com", 100, now)
	outside := h.buy("b@example.com", 100, now.Add(3*day))

	require.NotNil(t, inside.LaunchID)
	assert.Equal(t, l.ID, *inside.LaunchID)
	assert.Equal(t, l.ID, *h.purchaseLaunch(inside.PurchaseID))
	assert.Nil(t, outside.LaunchID)
	assert.Nil(t, h.purchaseLaunch(outside.PurchaseID))
}

func TestAttributeRedelivery(t *testing.T) {
	fingerprinted := attribution.NormalizedPurchase{
		Email: "stranger@example.com", Amount: decimal.NewFromInt(100), Platform: "teachable",
		PlatformPurchaseID: "tch_dup", PurchasedAt: now, DeviceFingerprint: "fp_1",
	}

	t.Run("keeps a refund", func(t *testing.T) {
		h := newHarness(t)
		first := h.buy("buyer@example.com", 100, now)
		p, err := h.store.Purchases().FindByID(h.ctx, account, first.PurchaseID)
		require.NoError(t, err)
		require.NoError(t, h.attribution.RecordRefund(h.ctx, account, "teachable", p.PlatformPurchaseID))

		again, err := h.attribution.Attribute(h.ctx, account, attribution.NormalizedPurchase{
			Email: "buyer@example.com", Amount: decimal.NewFromInt(100), Platform: "teachable",
			PlatformPurchaseID: p.PlatformPurchaseID, PurchasedAt: now,
		})
		require.NoError(t, err)
		assert.Equal(t, first.PurchaseID, again.PurchaseID)

		stored, err := h.store.Purchases().FindByID(h.ctx, account, first.PurchaseID)
		require.NoError(t, err)
		assert.True(t, stored.Amount.IsZero())
	})

	t.Run("keeps a fingerprint match after the window", func(t *testing.T) {
		h := newHarness(t)
		v, err := h.identity.RecordVisit(h.ctx, account, attribution.VisitEvent{
			VisitorToken: "vt_fp", SessionToken: "st_fp", Source: "tiktok", Fingerprint: "fp_1", OccurredAt: now.Add(-time.Hour),
		})
		require.NoError(t, err)

		first, err := h.attribution.Attribute(h.ctx, account, fingerprinted)
		require.NoError(t, err)
		require.Equal(t, attribution.StatusMatched, first.Status)

		later := h.at(now.Add(48 * time.Hour))
		again, err := later.attribution.Attribute(h.ctx, account, fingerprinted)
		require.NoError(t, err)
		assert.Equal(t, first.PurchaseID, again.PurchaseID)
		assert.Equal(t, attribution.StatusMatched, again.Status)
		assert.Equal(t, attribution.MatchExisting, again.Method)
		require.NotNil(t, again.VisitorID)
		assert.Equal(t, v.ID, *again.VisitorID)
		require.NotNil(t, again.FirstTouch)
		assert.Equal(t, "tiktok", again.FirstTouch.Source)

		stored, err := h.store.Purchases().FindByID(h.ctx, account, first.PurchaseID)
		require.NoError(t, err)
		assert.Equal(t, attribution.StatusMatched, stored.Status)
		require.NotNil(t, stored.FirstTouch)
	})

	t.Run("upgrades an unmatched purchase", func(t *testing.T) {
		h := newHarness(t)
		first, err := h.attribution.Attribute(h.ctx, account, fingerprinted)
		require.NoError(t, err)
		require.Equal(t, attribution.StatusUnmatched, first.Status)

		h.visit("vt_late", "stranger@example.com", "youtube", now)
		again, err := h.attribution.Attribute(h.ctx, account, fingerprinted)
		require.NoError(t, err)
		assert.Equal(t, first.PurchaseID, again.PurchaseID)
		assert.Equal(t, attribution.StatusMatched, again.Status)
		assert.Equal(t, attribution.MatchByEmail, again.Method)
	})

	t.Run("reports the existing launch link", func(t *testing.T) {
		h := newHarness(t)
		l := h.newLaunch("Spring", now.Add(-day), now.Add(day))
		first := h.buy("buyer@example.com", 100, now)
		p, err := h.store.Purchases().FindByID(h.ctx, account, first.PurchaseID)
		require.NoError(t, err)

		again, err := h.attribution.Attribute(h.ctx, account, attribution.NormalizedPurchase{
			Email: "buyer@example.com", Amount: decimal.NewFromInt(100), Platform: "teachable",
			PlatformPurchaseID: p.PlatformPurchaseID, PurchasedAt: now,
		})
		require.NoError(t, err)
		require.NotNil(t, again.LaunchID)
		assert.Equal(t, l.ID, *again.LaunchID)
	})
}

func TestAttributeValidation(t *testing.T) {
	h := newHarness(t)
	base := attribution.NormalizedPurchase{
		Email: "a@example.com", Amount: decimal.NewFromInt(1), Platform: "teachable",
		PlatformPurchaseID: "t1", PurchasedAt: now,
	}

	cases := map[string]func(p *attribution.NormalizedPurchase){
		"missing email":    func(p *attribution.NormalizedPurchase) { p.Email = " " },
		"unknown platform": func(p *attribution.NormalizedPurchase) { p.Platform = "myspace" },
		"negative amount":  func(p *attribution.NormalizedPurchase) { p.Amount = decimal.NewFromInt(-1) },
		"missing id":       func(p *attribution.NormalizedPurchase) { p.PlatformPurchaseID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := h.attribution.Attribute(h.ctx, account, in)
			assert.True(t, apperror.IsValidation(err), err)
		})
	}
}

func TestReattribute(t *testing.T) {
	h := newHarness(t)
	res := h.buy("late@example.com", 80, now)
	require.Equal(t, attribution.StatusUnmatched, res.Status)

	t.Run("still unmatched without a visitor", func(t *testing.T) {
		r, err := h.attribution.Reattribute(h.ctx, account, res.PurchaseID)
		require.NoError(t, err)
		assert.Equal(t, attribution.ReattributeStillUnmatched, r.Outcome)

		p, err := h.store.Purchases().FindByID(h.ctx, account, res.PurchaseID)
		require.NoError(t, err)
		assert.Equal(t, attribution.StatusUnmatched, p.Status)
	})

	t.Run("matches once the email is known", func(t *testing.T) {
		h.visit("vt_late", "late@example.com", "youtube", now.Add(time.Hour))

		r, err := h.attribution.Reattribute(h.ctx, account, res.PurchaseID)
		require.NoError(t, err)
		assert.Equal(t, attribution.ReattributeMatched, r.Outcome)
		require.NotNil(t, r.FirstTouch)
		require.NotNil(t, r.LastTouch)
		assert.Equal(t, "youtube", r.FirstTouch.Source)

		p, err := h.store.Purchases().FindByID(h.ctx, account, res.PurchaseID)
		require.NoError(t, err)
		assert.Equal(t, attribution.StatusMatched, p.Status)
		assert.NotNil(t, p.VisitorID)
	})

	t.Run("unknown purchase", func(t *testing.T) {
		_, err := h.attribution.Reattribute(h.ctx, account, "missing")
		assert.True(t, apperror.IsNotFound(err))
	})
}

func TestReattributeUnmatchedAsJob(t *testing.T) {
	h := newHarness(t)
	h.buy("one@example.com", 10, now)
	h.buy("two@example.com", 10, now)
	h.visit("vt_one", "one@example.com", "google", now)

	job, err := h.jobs.StartReattribution(h.ctx, account, h.attribution)
	require.NoError(t, err)
	assert.False(t, job.Done())

	h.jobs.Wait()
	got, err := h.jobs.Get(h.ctx, account, job.ID)
	require.NoError(t, err)
	assert.True(t, got.Done())
	assert.Equal(t, 2, got.Processed)

	rate, err := h.attribution.MatchRate(h.ctx, account)
	require.NoError(t, err)
	assert.Equal(t, 1, rate.Matched)
	assert.Equal(t, 50, rate.Rate)

	_, err = h.jobs.Get(h.ctx, "other", job.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestMatchRate(t *testing.T) {
	h := newHarness(t)

	rate, err := h.attribution.MatchRate(h.ctx, account)
	require.NoError(t, err)
	assert.Equal(t, 0, rate.Rate)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		h.visit("vt_"+email, email, "google", now.Add(-time.Hour))
		h.buy(email, 10, now)
	}
	rate, err = h.attribution.MatchRate(h.ctx, account)
	require.NoError(t, err)
	assert.Equal(t, 100, rate.Rate)

	h.buy("nobody@example.com", 10, now)
	rate, err = h.attribution.MatchRate(h.ctx, account)
	require.NoError(t, err)
	assert.Equal(t, 4, rate.Total)
	assert.Equal(t, 3, rate.Matched)
	assert.Equal(t, 75, rate.Rate)
}

func TestRecordRefund(t *testing.T) {
	h := newHarness(t)
	res := h.buy("a@example.com", 120, now)
	p, err := h.store.Purchases().FindByID(h.ctx, account, res.PurchaseID)
	require.NoError(t, err)

	require.NoError(t, h.attribution.RecordRefund(h.ctx, account, "Teachable", p.PlatformPurchaseID))

	p, err = h.store.Purchases().FindByID(h.ctx, account, res.PurchaseID)
	require.NoError(t, err)
	assert.True(t, p.Amount.IsZero())

	err = h.attribution.RecordRefund(h.ctx, account, "teachable", "missing")
	assert.True(t, apperror.IsNotFound(err))
	err = h.attribution.RecordRefund(h.ctx, account, "myspace", "x")
	assert.True(t, apperror.IsValidation(err))
}
