package services

import (
	"strings"
	"testing"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/launch"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDerivesStatus(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name       string
		start, end time.Time
		want       launch.Status
	}{
		{"running now", now.Add(-day), now.Add(7 * day), launch.StatusActive},
		{"in the future", now.Add(7 * day), now.Add(14 * day), launch.StatusUpcoming},
		{"already over", now.Add(-14 * day), now.Add(-7 * day), launch.StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := h.newLaunch(tt.name, tt.start, tt.end)
			assert.Equal(t, tt.want, l.Status)
		})
	}

	t.Run("end must be after start", func(t *testing.T) {
		_, err := h.launches.Create(h.ctx, account, launch.Input{Title: "bad", StartDate: now, EndDate: now})
		assert.True(t, apperror.IsValidation(err))
	})
}

func TestCreateClaimsPurchasesInRange(t *testing.T) {
	h := newHarness(t)
	before := h.buy("a@example.com", 10, now.Add(-3*day))
	inside := h.buy("b@example.com", 20, now.Add(-day))
	atEnd := h.buy("c@example.com", 30, now)

	l := h.newLaunch("Spring", now.Add(-2*day), now)

	assert.Nil(t, h.purchaseLaunch(before.PurchaseID))
	assert.Equal(t, l.ID, *h.purchaseLaunch(inside.PurchaseID))
	assert.Equal(t, l.ID, *h.purchaseLaunch(atEnd.PurchaseID))

	t.Run("an overlapping launch does not steal", func(t *testing.T) {
		h.newLaunch("Overlap", now.Add(-2*day), now.Add(day))
		assert.Equal(t, l.ID, *h.purchaseLaunch(inside.PurchaseID))
	})
}

func TestUpdateRelinksOnDateChange(t *testing.T) {
	h := newHarness(t)
	early := h.buy("a@example.com", 10, now.Add(-5*day))
	late := h.buy("b@example.com", 20, now.Add(-day))

	l := h.newLaunch("Spring", now.Add(-6*day), now.Add(-4*day))
	require.Equal(t, l.ID, *h.purchaseLaunch(early.PurchaseID))
	require.Nil(t, h.purchaseLaunch(late.PurchaseID))

	start, end := now.Add(-2*day), now.Add(day)
	updated, err := h.launches.Update(h.ctx, account, l.ID, launch.Patch{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, launch.StatusActive, updated.Status)

	assert.Nil(t, h.purchaseLaunch(early.PurchaseID))
	assert.Equal(t, l.ID, *h.purchaseLaunch(late.PurchaseID))

	t.Run("title only leaves links alone", func(t *testing.T) {
		title := "Renamed"
		got, err := h.launches.Update(h.ctx, account, l.ID, launch.Patch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, l.ID, *h.purchaseLaunch(late.PurchaseID))
	})

	t.Run("empty patch", func(t *testing.T) {
		_, err := h.launches.Update(h.ctx, account, l.ID, launch.Patch{})
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("other account", func(t *testing.T) {
		title := "x"
		_, err := h.launches.Update(h.ctx, "other", l.ID, launch.Patch{Title: &title})
		assert.True(t, apperror.IsNotFound(err))
	})

	t.Run("inverted range", func(t *testing.T) {
		bad := l.StartDate.Add(-day)
		_, err := h.launches.Update(h.ctx, account, l.ID, launch.Patch{EndDate: &bad})
		assert.True(t, apperror.IsValidation(err))
	})
}

func TestUpdateRelinksPurchasesHeldByOverlappingLaunch(t *testing.T) {
	h := newHarness(t)
	other := h.newLaunch("Other", now.Add(-3*day), now.Add(-2*day))
	held := h.buy("a@example.com", 10, now.Add(-2*day-time.Hour))
	require.Equal(t, other.ID, *h.purchaseLaunch(held.PurchaseID))

	l := h.newLaunch("Spring", now.Add(-2*day-2*time.Hour), now.Add(day))
	require.Equal(t, other.ID, *h.purchaseLaunch(held.PurchaseID), "create claims unassigned purchases only")

	start := now.Add(-4 * day)
	_, err := h.launches.Update(h.ctx, account, l.ID, launch.Patch{StartDate: &start})
	require.NoError(t, err)
	assert.Equal(t, l.ID, *h.purchaseLaunch(held.PurchaseID))
}

func TestDeleteDetachesPurchases(t *testing.T) {
	h := newHarness(t)
	l := h.newLaunch("Spring", now.Add(-day), now.Add(day))
	res := h.buy("a@example.com", 10, now)
	require.NotNil(t, res.LaunchID)

	require.NoError(t, h.launches.Delete(h.ctx, account, l.ID))
	assert.Nil(t, h.purchaseLaunch(res.PurchaseID))

	err := h.launches.Delete(h.ctx, account, l.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestArchiveIsTerminal(t *testing.T) {
	h := newHarness(t)
	l := h.newLaunch("Spring", now.Add(day), now.Add(2*day))

	archived, err := h.launches.Archive(h.ctx, account, l.ID)
	require.NoError(t, err)
	assert.Equal(t, launch.StatusArchived, archived.Status)

	later := h.at(now.Add(5 * day))
	res, err := later.scheduler.Tick(later.ctx, later.now)
	require.NoError(t, err)
	assert.Zero(t, res.Activated)
	assert.Zero(t, res.Completed)

	got, err := later.launches.Get(later.ctx, account, l.ID)
	require.NoError(t, err)
	assert.Equal(t, launch.StatusArchived, got.Status)
}

func TestGetCorrectsStatusDrift(t *testing.T) {
	h := newHarness(t)
	l := h.newLaunch("Spring", now.Add(time.Hour), now.Add(day))
	require.Equal(t, launch.StatusUpcoming, l.Status)

	later := h.at(now.Add(2 * time.Hour))
	got, err := later.launches.Get(later.ctx, account, l.ID)
	require.NoError(t, err)
	assert.Equal(t, launch.StatusActive, got.Status)

	stored, err := h.store.Launches().FindByID(h.ctx, account, l.ID)
	require.NoError(t, err)
	assert.Equal(t, launch.StatusActive, stored.Status)

	_, err = h.launches.Get(h.ctx, "other", l.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestListPaging(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.newLaunch("L", now.Add(time.Duration(i)*day), now.Add(time.Duration(i+1)*day))
	}

	page, err := h.launches.List(h.ctx, account, launch.ListQuery{Page: 2, Limit: 2, SortField: launch.SortByStart})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Launches, 2)
}

func TestDuplicate(t *testing.T) {
	h := newHarness(t)
	goal := decimal.NewFromInt(5000)
	sales := 50
	desc := "Cohort"
	src, err := h.launches.Create(h.ctx, account, launch.Input{
		Title: "Spring", Description: &desc, StartDate: now.Add(-30 * day), EndDate: now.Add(-20 * day),
		RevenueGoal: &goal, SalesGoal: &sales,
	})
	require.NoError(t, err)

	dup, err := h.launches.Duplicate(h.ctx, account, src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, "Spring (Copy)", dup.Title)
	assert.Equal(t, "Cohort", *dup.Description)
	assert.True(t, dup.Goals.Revenue.Equal(goal))
	assert.Equal(t, 50, *dup.Goals.Sales)
	assert.True(t, dup.StartDate.Equal(now))
	assert.True(t, dup.EndDate.Equal(now.Add(7*day)))
	assert.Equal(t, launch.StatusActive, dup.Status)
}

func TestShareGates(t *testing.T) {
	h := newHarness(t)
	l := h.newLaunch("Spring", now.Add(-3*day), now.Add(-day))
	h.buy("a@example.com", 100, now.Add(-2*day))

	password := "s3cret"
	expires := now.Add(2 * day)
	link, err := h.launches.EnableShare(h.ctx, account, l.ID, ShareOptions{Password: &password, ExpiresAt: &expires})
	require.NoError(t, err)
	assert.True(t, link.PasswordProtected)
	assert.True(t, strings.HasSuffix(link.ShareURL, "/share/"+link.ShareToken))

	stored, err := h.store.Launches().FindByID(h.ctx, account, l.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Share.PasswordHash)
	assert.NotEqual(t, password, *stored.Share.PasswordHash)

	_, err = h.launches.GetPublicByToken(h.ctx, link.ShareToken, "", Viewer{})
	assert.Equal(t, apperror.CodePasswordRequired, apperror.CodeOf(err))

	_, err = h.launches.GetPublicByToken(h.ctx, link.ShareToken, "wrong", Viewer{})
	assert.Equal(t, apperror.CodeInvalidPassword, apperror.CodeOf(err))

	pub, err := h.launches.GetPublicByToken(h.ctx, link.ShareToken, password, Viewer{IP: "203.0.113.7"})
	require.NoError(t, err)
	assert.Equal(t, "Spring", pub.Title)
	assert.True(t, pub.Metrics.Revenue.Equal(decimal.NewFromInt(100)))

	views, err := h.launches.ShareViews(h.ctx, account, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, views.Total)
	assert.Equal(t, 1, views.Last7Days)

	expired := h.at(now.Add(3 * day))
	_, err = expired.launches.GetPublicByToken(expired.ctx, link.ShareToken, password, Viewer{})
	assert.Equal(t, apperror.CodeShareExpired, apperror.CodeOf(err))

	require.NoError(t, h.launches.DisableShare(h.ctx, account, l.ID))
	_, err = h.launches.GetPublicByToken(h.ctx, link.ShareToken, password, Viewer{})
	assert.True(t, apperror.IsNotFound(err))

	t.Run("expiry in the past is rejected", func(t *testing.T) {
		past := now.Add(-time.Hour)
		_, err := h.launches.EnableShare(h.ctx, account, l.ID, ShareOptions{ExpiresAt: &past})
		assert.True(t, apperror.IsValidation(err))
	})
}

func TestSendRecap(t *testing.T) {
	h := newHarness(t)
	l := h.newLaunch("Spring", now.Add(-3*day), now.Add(-day))
	h.buy("a@example.com", 250, now.Add(-2*day))
	_, err := h.launches.EnableShare(h.ctx, account, l.ID, ShareOptions{})
	require.NoError(t, err)

	require.NoError(t, h.launches.SendRecap(h.ctx, account, l.ID, "Owner@Example.com"))

	sent := h.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "owner@example.com", sent[0].To)
	assert.Contains(t, sent[0].Subject, "Spring")
	assert.Contains(t, sent[0].HTML, "250.00")
	assert.Contains(t, sent[0].HTML, "/share/")

	err = h.launches.SendRecap(h.ctx, account, l.ID, "nope")
	assert.True(t, apperror.IsValidation(err))
}
