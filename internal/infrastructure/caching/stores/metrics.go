// Package stores provides concrete cache store implementations
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/types"
)

// MetricsStore implements MetricsCache in memory with account isolation
type MetricsStore struct {
	accountCaches map[string]*types.AccountMetricsCache
	mu            sync.RWMutex
	clock         clock.Clock
}

var (
	_ interfaces.MetricsCache  = (*MetricsStore)(nil)
	_ interfaces.ExpiringCache = (*MetricsStore)(nil)
)

// NewMetricsStore creates a new in-memory metrics cache store
func NewMetricsStore(clk clock.Clock) *MetricsStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &MetricsStore{
		accountCaches: make(map[string]*types.AccountMetricsCache),
		clock:         clk,
	}
}

func (ms *MetricsStore) getAccountCache(accountID string) (*types.AccountMetricsCache, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	cache, exists := ms.accountCaches[accountID]
	return cache, exists
}

func (ms *MetricsStore) initializeAccount(accountID string) *types.AccountMetricsCache {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.accountCaches[accountID] == nil {
		ms.accountCaches[accountID] = &types.AccountMetricsCache{
			Entries:     make(map[string]*types.MetricsEntry),
			LastUpdated: ms.clock.Now(),
		}
	}
	return ms.accountCaches[accountID]
}

// Get decodes a fresh entry into dest.
func (ms *MetricsStore) Get(_ context.Context, accountID, key string, dest any) (bool, error) {
	cache, exists := ms.getAccountCache(accountID)
	if !exists {
		return false, nil
	}

	cache.Mu.RLock()
	entry, ok := cache.Entries[key]
	cache.Mu.RUnlock()
	if !ok || entry.Expired(ms.clock.Now()) {
		return false, nil
	}

	if err := json.Unmarshal(entry.Payload, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached metrics: %w", err)
	}
	return true, nil
}

// Set stores value under key until ttl elapses.
func (ms *MetricsStore) Set(_ context.Context, accountID, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode metrics for cache: %w", err)
	}

	cache, exists := ms.getAccountCache(accountID)
	if !exists {
		cache = ms.initializeAccount(accountID)
	}

	now := ms.clock.Now()
	cache.Mu.Lock()
	defer cache.Mu.Unlock()
	cache.Entries[key] = &types.MetricsEntry{Payload: payload, ExpiresAt: now.Add(ttl)}
	cache.LastUpdated = now
	return nil
}

// InvalidateAccount drops every entry for the account.
func (ms *MetricsStore) InvalidateAccount(_ context.Context, accountID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.accountCaches, accountID)
	return nil
}

// PurgeExpired removes expired entries and empty accounts, returning the number removed.
func (ms *MetricsStore) PurgeExpired(now time.Time) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	removed := 0
	for accountID, cache := range ms.accountCaches {
		cache.Mu.Lock()
		for key, entry := range cache.Entries {
			if entry.Expired(now) {
				delete(cache.Entries, key)
				removed++
			}
		}
		empty := len(cache.Entries) == 0
		cache.Mu.Unlock()
		if empty {
			delete(ms.accountCaches, accountID)
		}
	}
	return removed
}

// Stats reports the number of cached accounts and entries.
func (ms *MetricsStore) Stats() interfaces.Stats {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	stats := interfaces.Stats{Accounts: len(ms.accountCaches)}
	for _, cache := range ms.accountCaches {
		cache.Mu.RLock()
		stats.Entries += len(cache.Entries)
		cache.Mu.RUnlock()
	}
	return stats
}
