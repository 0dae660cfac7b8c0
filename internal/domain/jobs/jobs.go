// Package jobs tracks long-running work so callers can poll instead of block.
package jobs

import "time"

// Status of a tracked job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Kind names the work a job performs.
type Kind string

const KindReattribute Kind = "reattribute_unmatched"

// Job is one tracked unit of background work.
type Job struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"accountId"`
	Kind       Kind       `json:"kind"`
	Status     Status     `json:"status"`
	Processed  int        `json:"processed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
