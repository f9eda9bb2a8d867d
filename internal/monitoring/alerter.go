package monitoring

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nregatrack/nrega-sync/internal/config"
	"github.com/nregatrack/nrega-sync/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSyncFailure     AlertType = "sync_failure"
	AlertSyncFailureRate AlertType = "sync_failure_rate"
	AlertSyncStale       AlertType = "sync_stale"
	AlertSyncStuck       AlertType = "sync_stuck"
	AlertPairFailures    AlertType = "pair_failures"
)

// minFinishedForRate is the number of finished runs needed before the
// failure rate is judged.
const minFinishedForRate = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Ages are measured from snap.CollectedAt.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	if snap.LatestStatus == model.SyncFailed {
		alerts = append(alerts, Alert{
			Type:      AlertSyncFailure,
			Severity:  "high",
			Message:   "Most recent MGNREGA sync run failed",
			Details:   map[string]any{"failed_in_window": snap.RunsFailed},
			Timestamp: now,
		})
	}

	finished := snap.RunsSuccess + snap.RunsFailed
	if finished >= minFinishedForRate && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSyncFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Sync failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.StaleAfterHours > 0 {
		limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		if snap.LastSuccessAt == nil || now.Sub(*snap.LastSuccessAt) > limit {
			details := map[string]any{"stale_after_hours": a.cfg.StaleAfterHours}
			msg := "No successful sync run on record"
			if snap.LastSuccessAt != nil {
				age := now.Sub(*snap.LastSuccessAt).Round(time.Minute)
				msg = fmt.Sprintf("Last successful sync finished %s ago (threshold %dh)", age, a.cfg.StaleAfterHours)
				details["last_success_at"] = snap.LastSuccessAt.Format(time.RFC3339)
			}
			alerts = append(alerts, Alert{
				Type:      AlertSyncStale,
				Severity:  "high",
				Message:   msg,
				Details:   details,
				Timestamp: now,
			})
		}
	}

	if a.cfg.StuckAfterHours > 0 && snap.OldestInProgress != nil {
		age := now.Sub(*snap.OldestInProgress)
		if age > time.Duration(a.cfg.StuckAfterHours)*time.Hour {
			alerts = append(alerts, Alert{
				Type:     AlertSyncStuck,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Sync run in progress for %s (threshold %dh)",
					age.Round(time.Minute), a.cfg.StuckAfterHours,
				),
				Details: map[string]any{
					"started_at": snap.OldestInProgress.Format(time.RFC3339),
				},
				Timestamp: now,
			})
		}
	}

	if snap.FailedPairs > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertPairFailures,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d state/year pair(s) failed to fetch in last %dh",
				snap.FailedPairs, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_pairs": snap.FailedPairs,
				"runs_total":   snap.RunsTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	sent := 0
	for _, alert := range alerts {
		if err := a.Send(ctx, alert); err == nil && a.cfg.WebhookURL != "" {
			sent++
		}
	}
	return sent
}

// Send delivers one alert. It is a no-op without a webhook URL.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if a.cfg.WebhookURL == "" {
		return nil
	}
	if err := a.sendWebhook(ctx, alert); err != nil {
		zap.L().Error("monitoring: failed to send alert",
			zap.String("type", string(alert.Type)),
			zap.Error(err),
		)
		return err
	}
	zap.L().Info("monitoring: alert sent",
		zap.String("type", string(alert.Type)),
		zap.String("severity", alert.Severity),
	)
	return nil
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
