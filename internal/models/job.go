package models

import "time"

// JobStatus is the delivery state of one outbound message job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one outbound message attempt chain. Rows are created queued by the
// submission path, mutated exclusively by the delivery worker, and never
// deleted so the attempt history stays auditable.
type Job struct {
	ID          int64      `json:"id"`
	ClientID    string     `json:"clientId"`
	To          string     `json:"to"`
	Text        string     `json:"text"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	// MaxAttempts of zero means the ceiling is resolved from runtime
	// settings when an attempt fails, not frozen at creation.
	MaxAttempts int        `json:"maxAttempts"`
	NextRunAt   *time.Time `json:"nextRunAt,omitempty"`
	LastError   *string    `json:"lastError,omitempty"`
	BroadcastID *int64     `json:"broadcastId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
