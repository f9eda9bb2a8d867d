package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nregatrack/nrega-sync/internal/model"
	"github.com/nregatrack/nrega-sync/internal/syncer"
)

func TestCollector_OnPair(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.OnPair(syncer.PairProgress{Result: syncer.PairResult{Added: 3, Updated: 2, Skipped: 1, Duration: time.Second}})
	c.OnPair(syncer.PairProgress{Result: syncer.PairResult{Added: 1}})
	c.OnPair(syncer.PairProgress{Result: syncer.PairResult{Added: 9, Err: errors.New("timeout")}})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.pairs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pairs.WithLabelValues("fetch_failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.records.WithLabelValues("added")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.records.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.records.WithLabelValues("skipped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.records.WithLabelValues("failed")))
}

func TestCollector_OnRunComplete(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	summary := &syncer.Summary{
		Duration:    90 * time.Second,
		FailedPairs: []syncer.PairFailure{{Pair: syncer.Pair{State: "GOA"}, Error: "boom"}},
	}
	c.OnRunComplete(summary, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("success")))
	assert.Equal(t, 90.0, testutil.ToFloat64(c.lastRunDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lastFailedPairs))
	assert.Greater(t, testutil.ToFloat64(c.lastSuccess), 0.0)

	c.OnRunComplete(summary, errors.New("discover states"))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("failed")))

	c.OnRunComplete(summary, &syncer.RunLogError{Status: model.SyncSuccess, Err: errors.New("conn lost")})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("log_error")))
}

func TestCollector_RegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.OnPair(syncer.PairProgress{Result: syncer.PairResult{Added: 1}})
	c.OnRunComplete(&syncer.Summary{}, nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"nrega_sync_pairs_total",
		"nrega_sync_records_total",
		"nrega_sync_pair_duration_seconds",
		"nrega_sync_runs_total",
		"nrega_sync_last_success_timestamp_seconds",
	} {
		assert.True(t, names[want], want)
	}
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, "success", RunStatus(nil))
	assert.Equal(t, "failed", RunStatus(errors.New("x")))
	assert.Equal(t, "log_error", RunStatus(&syncer.RunLogError{Err: errors.New("x")}))
}

func TestCollectorImplementsObserver(t *testing.T) {
	var _ syncer.Observer = (*Collector)(nil)
}
