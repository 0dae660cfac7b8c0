// Package performance provides operation timing and Prometheus metrics for LaunchTrack.
package performance

import (
	"sync"
	"time"
)

// Marker represents a single performance measurement for an operation
type Marker struct {
	Operation   string        `json:"operation"`       // e.g., "attribution:attribute", "metrics:summary"
	AccountID   string        `json:"accountId"`       // Account the operation ran for
	StartTime   time.Time     `json:"startTime"`       // When the operation started
	EndTime     time.Time     `json:"endTime"`         // When the operation completed
	Duration    time.Duration `json:"duration"`        // Total operation duration
	Success     bool          `json:"success"`         // Whether the operation completed successfully
	Error       string        `json:"error,omitempty"` // Error message if operation failed
	CacheHits   int           `json:"cacheHits"`       // Number of cache hits during operation
	CacheMisses int           `json:"cacheMisses"`     // Number of cache misses during operation
	Completed   bool          `json:"completed"`       // Whether Complete() has been called

	mu      sync.Mutex
	tracker *Tracker
}

// Complete marks the operation as finished and records its duration. Calling it twice is a no-op.
func (m *Marker) Complete() {
	m.mu.Lock()
	if m.Completed {
		m.mu.Unlock()
		return
	}
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
	m.mu.Unlock()

	if m.tracker != nil {
		m.tracker.observe(m)
	}
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

// AddCacheHit increments the cache hit counter
func (m *Marker) AddCacheHit() {
	m.CacheHits++
}

// AddCacheMiss increments the cache miss counter
func (m *Marker) AddCacheMiss() {
	m.CacheMisses++
}
