// Package syncer drives a sync run over every (state, financial year) pair.
package syncer

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nregatrack/nrega-sync/internal/model"
	"github.com/nregatrack/nrega-sync/internal/source"
	"github.com/nregatrack/nrega-sync/internal/store"
	"github.com/nregatrack/nrega-sync/internal/transform"
)

// Sync types recorded in the sync log.
const (
	SyncTypeFull      = "full"
	SyncTypePartial   = "partial"
	SyncTypeScheduled = "scheduled"
)

// terminalWriteTimeout bounds the final sync log update, which still runs
// after the run context is cancelled.
const terminalWriteTimeout = 10 * time.Second

// Fetcher retrieves raw records from the upstream API.
type Fetcher interface {
	FetchAll(ctx context.Context, filter source.Filter) ([]model.RawRecord, error)
	FetchPage(ctx context.Context, filter source.Filter, offset, limit int) (*source.Page, error)
}

// Options configures an Engine.
type Options struct {
	// FinYears is used when a run names no years.
	FinYears []string
	// RegionDelay pauses between state iterations.
	RegionDelay time.Duration
	// Workers bounds how many states of one year are processed at once.
	Workers int
	// SamplePageSize is the page size used to discover states on an empty store.
	SamplePageSize int
}

// Engine orchestrates sync runs.
type Engine struct {
	store     store.Store
	fetcher   Fetcher
	opts      Options
	observers []Observer
}

// RunOpts restricts a run to specific states and years.
type RunOpts struct {
	States   []string
	FinYears []string
	// SyncType overrides the recorded type; by default "full" without
	// restrictions and "partial" with.
	SyncType string
}

// NewEngine creates a new sync engine.
func NewEngine(st store.Store, f Fetcher, opts Options, observers ...Observer) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.SamplePageSize <= 0 {
		opts.SamplePageSize = source.DefaultPageSize
	}
	return &Engine{store: st, fetcher: f, opts: opts, observers: observers}
}

// Run executes one sync pass. Only a failure to start the run returns a nil
// Summary. Pair failures are isolated and do not fail the run; discovery
// failures and cancellation do. A *RunLogError means the sync itself
// finished but its terminal log row was not written.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*Summary, error) {
	start := time.Now()
	traceID := uuid.New().String()
	log := zap.L().With(zap.String("component", "syncer.engine"), zap.String("trace_id", traceID))

	syncType := opts.SyncType
	if syncType == "" {
		syncType = SyncTypeFull
		if len(opts.States) > 0 || len(opts.FinYears) > 0 {
			syncType = SyncTypePartial
		}
	}

	runID, err := e.store.StartSyncRun(ctx, syncType)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: start sync run")
	}
	log = log.With(zap.Int64("run_id", runID))

	summary := &Summary{
		RunID:    runID,
		TraceID:  traceID,
		SyncType: syncType,
		FinYears: ResolveYears(opts.FinYears, e.opts.FinYears),
	}
	log.Info("sync run started", zap.String("sync_type", syncType), zap.Strings("fin_years", summary.FinYears))

	runErr := e.execute(ctx, log, summary, opts.States)
	summary.Duration = time.Since(start)

	err = e.finish(ctx, log, summary, runErr)
	for _, o := range e.observers {
		o.OnRunComplete(summary, err)
	}
	return summary, err
}

func (e *Engine) execute(ctx context.Context, log *zap.Logger, summary *Summary, explicitStates []string) error {
	states, origin, err := e.resolveStates(ctx, explicitStates, summary.FinYears[0])
	if err != nil {
		log.Error("state discovery failed", zap.Error(err))
		return err
	}
	summary.States = states
	log.Info("resolved states", zap.Int("count", len(states)), zap.String("origin", origin))

	total := len(states) * len(summary.FinYears)
	var done atomic.Int64

	for _, year := range summary.FinYears {
		results, err := e.runYear(ctx, log, year, states, func(r PairResult) {
			e.notify(PairProgress{
				RunID:   summary.RunID,
				TraceID: summary.TraceID,
				Index:   int(done.Add(1)),
				Total:   total,
				Result:  r,
			})
		})
		for _, r := range results {
			summary.add(r)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// runYear processes every state of one year and returns the finished pair
// results in state order. A non-nil error means the run was cancelled.
func (e *Engine) runYear(ctx context.Context, log *zap.Logger, year string, states []string, onPair func(PairResult)) ([]PairResult, error) {
	results := make([]*PairResult, len(states))

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)

	var stopErr error
	for i, state := range states {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		if i > 0 {
			if err := sleepCtx(ctx, e.opts.RegionDelay); err != nil {
				stopErr = err
				break
			}
		}

		if e.opts.Workers == 1 {
			r := e.runPair(ctx, log, Pair{State: state, FinYear: year})
			results[i] = &r
			onPair(r)
			continue
		}
		g.Go(func() error {
			r := e.runPair(ctx, log, Pair{State: state, FinYear: year})
			results[i] = &r
			onPair(r)
			return nil
		})
	}
	_ = g.Wait()

	if stopErr == nil {
		stopErr = ctx.Err()
	}

	finished := make([]PairResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			finished = append(finished, *r)
		}
	}
	return finished, stopErr
}

// runPair fetches and persists one pair. Fetch errors are returned in the
// result; record-level errors are counted and skipped.
func (e *Engine) runPair(ctx context.Context, log *zap.Logger, pair Pair) PairResult {
	start := time.Now()
	res := PairResult{Pair: pair}
	pairLog := log.With(zap.String("state", pair.State), zap.String("fin_year", pair.FinYear))

	records, err := e.fetcher.FetchAll(ctx, source.Filter{StateName: pair.State, FinYear: pair.FinYear})
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		pairLog.Error("fetch failed", zap.Error(err), zap.Duration("elapsed", res.Duration))
		return res
	}

	stateCodeWarned := make(map[string]bool)
	for _, raw := range records {
		if ctx.Err() != nil {
			break
		}

		rec, err := transform.Normalize(raw)
		if err != nil {
			res.Skipped++
			pairLog.Warn("skipping malformed record", zap.Error(err))
			continue
		}

		district, err := e.store.UpsertDistrict(ctx, rec.District)
		if err != nil {
			res.Failed++
			pairLog.Error("district upsert failed", zap.String("district_code", rec.District.Code), zap.Error(err))
			continue
		}
		if district.StateCode != rec.District.StateCode && !stateCodeWarned[district.Code] {
			stateCodeWarned[district.Code] = true
			pairLog.Warn("district state code differs from stored value; keeping stored code",
				zap.String("district_code", district.Code),
				zap.String("stored_state_code", district.StateCode),
				zap.String("remote_state_code", rec.District.StateCode),
			)
		}

		_, created, err := e.store.UpsertDistrictRecord(ctx, district.ID, rec)
		if err != nil {
			res.Failed++
			pairLog.Error("record upsert failed",
				zap.String("district_code", rec.District.Code),
				zap.String("month", rec.Month),
				zap.Error(err),
			)
			continue
		}
		if created {
			res.Added++
		} else {
			res.Updated++
		}
	}

	res.Duration = time.Since(start)
	pairLog.Debug("pair complete",
		zap.Int("records", len(records)),
		zap.Int64("added", res.Added),
		zap.Int64("updated", res.Updated),
	)
	return res
}

// resolveStates returns the explicit states, else those already stored,
// else the distinct states of one sample page for latestYear.
func (e *Engine) resolveStates(ctx context.Context, explicit []string, latestYear string) ([]string, string, error) {
	if states := cleanList(explicit); len(states) > 0 {
		return states, "explicit", nil
	}

	stored, err := e.store.DistinctStateNames(ctx)
	if err != nil {
		return nil, "", eris.Wrap(err, "syncer: list stored states")
	}
	if len(stored) > 0 {
		return stored, "store", nil
	}

	page, err := e.fetcher.FetchPage(ctx, source.Filter{FinYear: latestYear}, 0, e.opts.SamplePageSize)
	if err != nil {
		return nil, "", eris.Wrap(err, "syncer: discover states")
	}
	seen := make(map[string]bool)
	var states []string
	for _, raw := range page.Records {
		name, ok := raw.Get(transform.FieldStateName)
		name = strings.TrimSpace(name)
		if !ok || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		states = append(states, name)
	}
	sort.Strings(states)
	return states, "remote", nil
}

// finish writes the terminal sync log row. It uses a context detached from
// cancellation so cancelled runs are still recorded as failed.
func (e *Engine) finish(ctx context.Context, log *zap.Logger, summary *Summary, runErr error) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	result := summary.result()
	status := model.SyncSuccess
	var logErr error
	if runErr != nil {
		status = model.SyncFailed
		logErr = e.store.FailSyncRun(writeCtx, summary.RunID, runErr.Error(), result)
	} else {
		logErr = e.store.CompleteSyncRun(writeCtx, summary.RunID, result)
	}

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int64("added", summary.Added),
		zap.Int64("updated", summary.Updated),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("failed", summary.Failed),
		zap.Int("failed_pairs", len(summary.FailedPairs)),
		zap.Duration("elapsed", summary.Duration),
	}
	if runErr != nil {
		log.Error("sync run failed", append(fields, zap.Error(runErr))...)
	} else {
		log.Info("sync run complete", fields...)
	}

	if logErr != nil {
		log.Error("failed to record sync run outcome", zap.Error(logErr))
		if runErr != nil {
			return runErr
		}
		return &RunLogError{RunID: summary.RunID, Status: status, Err: logErr}
	}
	return runErr
}

func (e *Engine) notify(p PairProgress) {
	for _, o := range e.observers {
		o.OnPair(p)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
