package syncer

import (
	"time"

	"go.uber.org/zap"
)

// PairProgress describes one finished (state, year) pair.
type PairProgress struct {
	RunID   int64
	TraceID string
	// Index counts finished pairs in this run, starting at 1.
	Index  int
	Total  int
	Result PairResult
}

// Observer receives progress from a running Engine. With more than one
// worker, OnPair is called concurrently.
type Observer interface {
	OnPair(p PairProgress)
	OnRunComplete(s *Summary, err error)
}

// LogObserver writes a progress line per pair.
type LogObserver struct {
	log *zap.Logger
}

// NewLogObserver returns an Observer that logs through the global zap logger.
func NewLogObserver() *LogObserver {
	return &LogObserver{log: zap.L().With(zap.String("component", "syncer.progress"))}
}

func (o *LogObserver) OnPair(p PairProgress) {
	r := p.Result
	o.log.Info("pair finished",
		zap.String("trace_id", p.TraceID),
		zap.Int("pair", p.Index),
		zap.Int("pairs", p.Total),
		zap.String("state", r.State),
		zap.String("fin_year", r.FinYear),
		zap.Int64("added", r.Added),
		zap.Int64("updated", r.Updated),
		zap.Int64("skipped", r.Skipped),
		zap.Int64("failed", r.Failed),
		zap.Bool("fetch_failed", r.Err != nil),
		zap.Duration("elapsed", r.Duration),
	)
}

func (o *LogObserver) OnRunComplete(s *Summary, err error) {
	if s == nil {
		return
	}
	o.log.Info("run finished",
		zap.String("trace_id", s.TraceID),
		zap.Int64("run_id", s.RunID),
		zap.Bool("ok", err == nil),
		zap.Duration("elapsed", s.Duration.Round(time.Millisecond)),
	)
}
