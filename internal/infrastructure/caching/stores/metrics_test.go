package stores

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Revenue string `json:"revenue"`
	Count   int    `json:"count"`
}

type movableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *movableClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMetricsStoreGetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMetricsStore(clock.Fixed{T: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})

	var got summary
	found, err := store.Get(ctx, "acct", "summary", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "acct", "summary", summary{Revenue: "300", Count: 2}, time.Minute))
	found, err = store.Get(ctx, "acct", "summary", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, summary{Revenue: "300", Count: 2}, got)

	found, err = store.Get(ctx, "other", "summary", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMetricsStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &movableClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMetricsStore(clk)

	require.NoError(t, store.Set(ctx, "acct", "a", summary{Count: 1}, time.Minute))
	require.NoError(t, store.Set(ctx, "acct", "b", summary{Count: 2}, time.Hour))

	clk.advance(2 * time.Minute)

	var got summary
	found, err := store.Get(ctx, "acct", "a", &got)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, 1, store.PurgeExpired(clk.Now()))
	assert.Equal(t, 1, store.Stats().Entries)

	clk.advance(2 * time.Hour)
	assert.Equal(t, 1, store.PurgeExpired(clk.Now()))
	assert.Equal(t, 0, store.Stats().Accounts)
}

func TestMetricsStoreInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMetricsStore(nil)

	require.NoError(t, store.Set(ctx, "acct", "a", summary{Count: 1}, time.Minute))
	require.NoError(t, store.Set(ctx, "other", "a", summary{Count: 1}, time.Minute))
	require.NoError(t, store.InvalidateAccount(ctx, "acct"))

	var got summary
	found, _ := store.Get(ctx, "acct", "a", &got)
	assert.False(t, found)
	found, _ = store.Get(ctx, "other", "a", &got)
	assert.True(t, found)
}

func TestMetricsStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMetricsStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Set(ctx, "acct", "k", summary{Count: i}, time.Minute)
			var got summary
			_, _ = store.Get(ctx, "acct", "k", &got)
			if i%5 == 0 {
				_ = store.InvalidateAccount(ctx, "acct")
			}
		}(i)
	}
	wg.Wait()
}
