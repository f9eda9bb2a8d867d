package syncer

import (
	"fmt"
	"time"

	"github.com/nregatrack/nrega-sync/internal/model"
)

// Pair is one (state, financial year) combination.
type Pair struct {
	State   string `json:"state"`
	FinYear string `json:"fin_year"`
}

// PairResult holds the counters of one processed pair. Err is set when the
// pair contributed nothing because its fetch failed.
type PairResult struct {
	Pair
	Added    int64
	Updated  int64
	Skipped  int64
	Failed   int64
	Err      error
	Duration time.Duration
}

// PairFailure records an isolated pair failure in the run summary.
type PairFailure struct {
	Pair
	Error string `json:"error"`
}

// Summary is the outcome of one Engine run.
type Summary struct {
	RunID       int64
	TraceID     string
	SyncType    string
	FinYears    []string
	States      []string
	Pairs       int
	Added       int64
	Updated     int64
	Skipped     int64
	Failed      int64
	FailedPairs []PairFailure
	Duration    time.Duration
}

// add folds a pair result into the summary.
func (s *Summary) add(r PairResult) {
	s.Pairs++
	if r.Err != nil {
		s.FailedPairs = append(s.FailedPairs, PairFailure{Pair: r.Pair, Error: r.Err.Error()})
		return
	}
	s.Added += r.Added
	s.Updated += r.Updated
	s.Skipped += r.Skipped
	s.Failed += r.Failed
}

// result builds the sync log payload for the terminal update.
func (s *Summary) result() *model.SyncResult {
	meta := map[string]any{
		"trace_id":    s.TraceID,
		"fin_years":   s.FinYears,
		"states":      len(s.States),
		"pairs":       s.Pairs,
		"skipped":     s.Skipped,
		"failed":      s.Failed,
		"duration_ms": s.Duration.Milliseconds(),
	}
	if len(s.FailedPairs) > 0 {
		meta["failed_pairs"] = s.FailedPairs
	}
	return &model.SyncResult{
		RecordsAdded:   s.Added,
		RecordsUpdated: s.Updated,
		Metadata:       meta,
	}
}

// RunLogError reports that the data sync finished but its terminal sync log
// row could not be written. The accompanying Summary is complete.
type RunLogError struct {
	RunID  int64
	Status model.SyncStatus
	Err    error
}

func (e *RunLogError) Error() string {
	return fmt.Sprintf("syncer: record %s for run %d: %v", e.Status, e.RunID, e.Err)
}

func (e *RunLogError) Unwrap() error {
	return e.Err
}
