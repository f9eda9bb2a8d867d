// Package metrics exports sync progress as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nregatrack/nrega-sync/internal/syncer"
)

const namespace = "nrega_sync"

// Collector implements syncer.Observer and records pair and run outcomes.
type Collector struct {
	pairs           *prometheus.CounterVec
	records         *prometheus.CounterVec
	pairDuration    prometheus.Histogram
	runs            *prometheus.CounterVec
	lastRunDuration prometheus.Gauge
	lastRunFinished prometheus.Gauge
	lastSuccess     prometheus.Gauge
	lastFailedPairs prometheus.Gauge
}

// NewCollector registers the sync metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		pairs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_total",
			Help:      "Processed (state, financial year) pairs by result.",
		}, []string{"result"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "District-month records by outcome.",
		}, []string{"outcome"}),
		pairDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pair_duration_seconds",
			Help:      "Time spent fetching and persisting one pair.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished sync runs by status.",
		}, []string{"status"}),
		lastRunDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the most recent sync run.",
		}),
		lastRunFinished: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the most recent sync run finished.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful sync run.",
		}),
		lastFailedPairs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_failed_pairs",
			Help:      "Pairs whose fetch failed in the most recent sync run.",
		}),
	}
}

func (c *Collector) OnPair(p syncer.PairProgress) {
	r := p.Result
	c.pairDuration.Observe(r.Duration.Seconds())
	if r.Err != nil {
		c.pairs.WithLabelValues("fetch_failed").Inc()
		return
	}
	c.pairs.WithLabelValues("ok").Inc()
	c.records.WithLabelValues("added").Add(float64(r.Added))
	c.records.WithLabelValues("updated").Add(float64(r.Updated))
	c.records.WithLabelValues("skipped").Add(float64(r.Skipped))
	c.records.WithLabelValues("failed").Add(float64(r.Failed))
}

func (c *Collector) OnRunComplete(s *syncer.Summary, err error) {
	now := time.Now()
	status := RunStatus(err)
	c.runs.WithLabelValues(status).Inc()
	c.lastRunFinished.Set(float64(now.Unix()))
	if s != nil {
		c.lastRunDuration.Set(s.Duration.Seconds())
		c.lastFailedPairs.Set(float64(len(s.FailedPairs)))
	}
	if status != "failed" {
		c.lastSuccess.Set(float64(now.Unix()))
	}
}

// RunStatus maps a run error to the status label. A sync log write failure
// is reported apart from a failed sync.
func RunStatus(err error) string {
	var rle *syncer.RunLogError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rle):
		return "log_error"
	default:
		return "failed"
	}
}
