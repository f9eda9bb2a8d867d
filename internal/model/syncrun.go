package model

import "time"

// SyncStatus is the lifecycle state of a sync run.
type SyncStatus string

const (
	SyncInProgress SyncStatus = "in_progress"
	SyncSuccess    SyncStatus = "success"
	SyncFailed     SyncStatus = "failed"
)

// Terminal reports whether the status is final.
func (s SyncStatus) Terminal() bool {
	return s == SyncSuccess || s == SyncFailed
}

// SyncRun represents a row in the sync_log table.
type SyncRun struct {
	ID             int64          `json:"id" yaml:"id"`
	SyncType       string         `json:"sync_type" yaml:"sync_type"`
	Status         SyncStatus     `json:"status" yaml:"status"`
	StartedAt      time.Time      `json:"started_at" yaml:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	RecordsAdded   int64          `json:"records_added" yaml:"records_added"`
	RecordsUpdated int64          `json:"records_updated" yaml:"records_updated"`
	ErrorMessage   string         `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Duration returns how long the run took, or zero while it is in progress.
func (r *SyncRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// SyncResult holds the counters written when a run reaches a terminal state.
type SyncResult struct {
	RecordsAdded   int64          `json:"records_added"`
	RecordsUpdated int64          `json:"records_updated"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
