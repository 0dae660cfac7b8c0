// Package clock abstracts "now" so status derivation and trend windows are deterministic in tests.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, always in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T.UTC() }
