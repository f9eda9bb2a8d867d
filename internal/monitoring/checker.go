package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nregatrack/nrega-sync/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultRenotifyAfter = 12 * time.Hour
)

// Checker evaluates sync health on an interval. An alert that keeps firing is
// delivered once and then again only after RenotifyAfterHours; an alert that
// clears and later returns is delivered immediately.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger

	mu       sync.Mutex
	notified map[AlertType]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
		notified:  make(map[AlertType]time.Time),
	}
}

// Run checks once at start and then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	c.log.Info("starting sync health checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	if ctx.Err() == nil {
		c.Check(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("sync health checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check evaluates one snapshot of the sync log and delivers the alerts that
// are new or due for a reminder. It returns every alert that fired.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("monitoring: failed to collect sync health", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	due := c.due(alerts, snap.CollectedAt)

	sent := 0
	for _, alert := range due {
		if err := c.alerter.Send(ctx, alert); err != nil {
			continue
		}
		c.markNotified(alert.Type, snap.CollectedAt)
		sent++
	}

	if len(alerts) == 0 {
		c.log.Debug("monitoring: sync healthy", zap.Int("runs_in_window", snap.RunsTotal))
		return nil
	}
	c.log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_suppressed", len(alerts)-len(due)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}

// due returns the alerts not delivered within the renotify window and forgets
// alert types that stopped firing.
func (c *Checker) due(alerts []Alert, now time.Time) []Alert {
	renotify := time.Duration(c.cfg.RenotifyAfterHours) * time.Hour
	if renotify <= 0 {
		renotify = defaultRenotifyAfter
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	firing := make(map[AlertType]bool, len(alerts))
	var out []Alert
	for _, a := range alerts {
		firing[a.Type] = true
		if last, ok := c.notified[a.Type]; ok && now.Sub(last) < renotify {
			continue
		}
		out = append(out, a)
	}
	for t := range c.notified {
		if !firing[t] {
			delete(c.notified, t)
		}
	}
	return out
}

func (c *Checker) markNotified(t AlertType, at time.Time) {
	c.mu.Lock()
	c.notified[t] = at
	c.mu.Unlock()
}
