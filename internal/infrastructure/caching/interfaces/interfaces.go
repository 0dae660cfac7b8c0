// Package interfaces defines the cache contracts used by the application services.
package interfaces

import (
	"context"
	"time"
)

// MetricsCache stores dashboard aggregates keyed by (account, query fingerprint) with an
// explicit TTL. Values are JSON encoded so every backend behaves the same.
type MetricsCache interface {
	// Get decodes the cached value into dest and reports whether it was found and fresh.
	Get(ctx context.Context, accountID, key string, dest any) (bool, error)
	Set(ctx context.Context, accountID, key string, value any, ttl time.Duration) error
	// InvalidateAccount drops every entry for the account.
	InvalidateAccount(ctx context.Context, accountID string) error
}

// ExpiringCache is implemented by backends that need explicit purging of expired entries.
type ExpiringCache interface {
	PurgeExpired(now time.Time) int
	Stats() Stats
}

// Stats is a point-in-time size report.
type Stats struct {
	Accounts int `json:"accounts"`
	Entries  int `json:"entries"`
}
