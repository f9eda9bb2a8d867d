package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/nregatrack/nrega-sync/internal/model"
)

// historyLimit bounds how many sync log rows one collection reads.
const historyLimit = 500

// MetricsSnapshot holds a point-in-time view of sync health.
type MetricsSnapshot struct {
	// Run counts within the lookback window.
	RunsTotal      int     `json:"runs_total"`
	RunsSuccess    int     `json:"runs_success"`
	RunsFailed     int     `json:"runs_failed"`
	RunsInProgress int     `json:"runs_in_progress"`
	FailRate       float64 `json:"fail_rate"`
	RecordsAdded   int64   `json:"records_added"`
	RecordsUpdated int64   `json:"records_updated"`
	FailedPairs    int     `json:"failed_pairs"`

	// Across the whole history read.
	LatestStatus     model.SyncStatus `json:"latest_status,omitempty"`
	LastSuccessAt    *time.Time       `json:"last_success_at,omitempty"`
	OldestInProgress *time.Time       `json:"oldest_in_progress,omitempty"`
	DistrictRecords  int64            `json:"district_records"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunSource is the subset of the store the collector reads.
type RunSource interface {
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)
	CountDistrictRecords(ctx context.Context) (int64, error)
}

// Collector gathers sync health from the sync log.
type Collector struct {
	src RunSource
}

// NewCollector creates a new metrics collector.
func NewCollector(src RunSource) *Collector {
	return &Collector{src: src}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.src.ListSyncRuns(ctx, historyLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sync runs")
	}

	// Runs arrive newest first.
	if len(runs) > 0 {
		snap.LatestStatus = runs[0].Status
	}
	for i := range runs {
		r := &runs[i]
		switch r.Status {
		case model.SyncSuccess:
			if snap.LastSuccessAt == nil {
				at := finishedAt(r)
				snap.LastSuccessAt = &at
			}
		case model.SyncInProgress:
			started := r.StartedAt
			snap.OldestInProgress = &started
		}

		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		snap.RecordsAdded += r.RecordsAdded
		snap.RecordsUpdated += r.RecordsUpdated
		snap.FailedPairs += failedPairs(r.Metadata)
		switch r.Status {
		case model.SyncSuccess:
			snap.RunsSuccess++
		case model.SyncFailed:
			snap.RunsFailed++
		case model.SyncInProgress:
			snap.RunsInProgress++
		}
	}

	if finished := snap.RunsSuccess + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}

	n, err := c.src.CountDistrictRecords(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count district records")
	}
	snap.DistrictRecords = n

	return snap, nil
}

func finishedAt(r *model.SyncRun) time.Time {
	if r.CompletedAt != nil {
		return *r.CompletedAt
	}
	return r.StartedAt
}

// failedPairs counts the failed_pairs entry of a run's metadata.
func failedPairs(meta map[string]any) int {
	switch v := meta["failed_pairs"].(type) {
	case []any:
		return len(v)
	case []map[string]any:
		return len(v)
	default:
		return 0
	}
}
