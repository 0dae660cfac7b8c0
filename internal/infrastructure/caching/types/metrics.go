// Package types defines the in-memory cache structures.
package types

import (
	"sync"
	"time"
)

// MetricsEntry is one encoded aggregate with its expiry.
type MetricsEntry struct {
	Payload   []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e *MetricsEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// AccountMetricsCache holds one account's entries behind its own lock.
type AccountMetricsCache struct {
	Mu          sync.RWMutex
	Entries     map[string]*MetricsEntry
	LastUpdated time.Time
}
