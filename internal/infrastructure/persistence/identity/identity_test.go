package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/testutil"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newVisitor(id, account, token string, created time.Time) *attribution.Visitor {
	return &attribution.Visitor{
		ID:           id,
		AccountID:    account,
		VisitorToken: token,
		FirstTouch:   attribution.Touch{Source: "google", Medium: "cpc", Campaign: "spring", CapturedAt: created},
		CreatedAt:    created,
	}
}

func strPtr(s string) *string { return &s }

func TestVisitorRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewSQLVisitorRepository(db, logging.NewNopLogger())

	older := newVisitor("v1", "acct", "tok1", base.Add(-48*time.Hour))
	older.Email = strPtr("jane@example.com")
	older.Fingerprint = strPtr("fp-1")
	newer := newVisitor("v2", "acct", "tok2", base.Add(-2*time.Hour))
	newer.Email = strPtr("jane@example.com")
	newer.Fingerprint = strPtr("fp-1")
	other := newVisitor("v3", "other", "tok1", base.Add(-time.Hour))
	other.Email = strPtr("jane@example.com")

	for _, v := range []*attribution.Visitor{older, newer, other} {
		created, err := repo.CreateIfAbsent(ctx, v)
		require.NoError(t, err)
		require.True(t, created)
	}

	t.Run("find by token is account scoped", func(t *testing.T) {
		v, err := repo.FindByToken(ctx, "acct", "tok1")
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, "v1", v.ID)
		assert.Equal(t, "google", v.FirstTouch.Source)
		assert.True(t, v.CreatedAt.Equal(older.CreatedAt))
	})

	t.Run("find by email returns most recent", func(t *testing.T) {
		v, err := repo.FindByEmail(ctx, "acct", "  JANE@example.com ")
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, "v2", v.ID)
	})

	t.Run("find by email miss", func(t *testing.T) {
		v, err := repo.FindByEmail(ctx, "acct", "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("fingerprint honours window", func(t *testing.T) {
		v, err := repo.FindByFingerprint(ctx, "acct", "fp-1", base.Add(-24*time.Hour))
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, "v2", v.ID)

		v, err = repo.FindByFingerprint(ctx, "acct", "fp-1", base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("email is never overwritten", func(t *testing.T) {
		anon := newVisitor("v4", "acct", "tok4", base)
		_, err := repo.CreateIfAbsent(ctx, anon)
		require.NoError(t, err)

		set, err := repo.SetEmailIfEmpty(ctx, "v4", "First@Example.com")
		require.NoError(t, err)
		assert.True(t, set)

		set, err = repo.SetEmailIfEmpty(ctx, "v4", "second@example.com")
		require.NoError(t, err)
		assert.False(t, set)

		v, err := repo.FindByToken(ctx, "acct", "tok4")
		require.NoError(t, err)
		assert.Equal(t, "first@example.com", *v.Email)
	})

	t.Run("taken token keeps the stored visitor", func(t *testing.T) {
		dup := newVisitor("v9", "acct", "tok1", base)
		dup.FirstTouch.Source = "bing"
		created, err := repo.CreateIfAbsent(ctx, dup)
		require.NoError(t, err)
		assert.False(t, created)

		v, err := repo.FindByToken(ctx, "acct", "tok1")
		require.NoError(t, err)
		assert.Equal(t, "v1", v.ID)
		assert.Equal(t, "google", v.FirstTouch.Source)
	})
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	logger := logging.NewNopLogger()
	visitors := NewSQLVisitorRepository(db, logger)
	sessions := NewSQLSessionRepository(db, logger)

	_, err := visitors.CreateIfAbsent(ctx, newVisitor("v1", "acct", "tok", base))
	require.NoError(t, err)

	t.Run("empty list", func(t *testing.T) {
		list, err := sessions.ListByVisitor(ctx, "v1")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	late := &attribution.Session{ID: "s2", VisitorID: "v1", SessionToken: "b", Source: "email", OccurredAt: base.Add(2 * time.Hour)}
	early := &attribution.Session{ID: "s1", VisitorID: "v1", SessionToken: "a", Source: "google", OccurredAt: base.Add(time.Hour)}

	inserted, err := sessions.Append(ctx, late)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = sessions.Append(ctx, early)
	require.NoError(t, err)
	assert.True(t, inserted)

	t.Run("duplicate token ignored", func(t *testing.T) {
		dup := &attribution.Session{ID: "s3", VisitorID: "v1", SessionToken: "a", Source: "bing", OccurredAt: base}
		inserted, err := sessions.Append(ctx, dup)
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("ordered ascending", func(t *testing.T) {
		list, err := sessions.ListByVisitor(ctx, "v1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "google", list[0].Source)
		assert.Equal(t, "email", list[1].Source)
	})
}

func TestVisitorRepositoryStorageError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM visitors").WillReturnError(errors.New("disk I/O error"))

	repo := NewSQLVisitorRepository(db, logging.NewNopLogger())
	v, err := repo.FindByEmail(context.Background(), "acct", "jane@example.com")
	assert.Nil(t, v)
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}
