package models

import "time"

// BroadcastStatus is the aggregate state of a multi-recipient submission.
type BroadcastStatus string

const (
	BroadcastStatusQueued  BroadcastStatus = "queued"
	BroadcastStatusSending BroadcastStatus = "sending"
	BroadcastStatusDone    BroadcastStatus = "done"
	BroadcastStatusFailed  BroadcastStatus = "failed"
)

// Broadcast groups the jobs created from one multi-recipient submission.
type Broadcast struct {
	ID        int64           `json:"id"`
	ClientID  string          `json:"clientId"`
	Name      string          `json:"name"`
	Text      string          `json:"text"`
	Status    BroadcastStatus `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// BroadcastStats holds per-status job counts for a broadcast. The counts are
// derived from job rows on read, never stored.
type BroadcastStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// Resolve derives the aggregate broadcast status from its job counts. A
// broadcast is done once no job is pending; it is failed when every job failed.
func (s BroadcastStats) Resolve() BroadcastStatus {
	total := s.Queued + s.Processing + s.Sent + s.Failed
	if total == 0 || s.Queued+s.Processing > 0 {
		return BroadcastStatusSending
	}
	if s.Sent == 0 {
		return BroadcastStatusFailed
	}
	return BroadcastStatusDone
}
