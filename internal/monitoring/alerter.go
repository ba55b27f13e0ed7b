package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/config"
	"github.com/sells-group/emissions-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate     AlertType = "failure_rate"
	AlertEstimationShare AlertType = "estimation_share"
	AlertSpend           AlertType = "estimation_spend"
	AlertCircuitOpen     AlertType = "estimation_circuit_open"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// delivers alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig

	mu sync.Mutex
	// spendAlerted is set once cumulative spend crosses the threshold and
	// cleared when spend drops back under it.
	spendAlerted bool
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("webhook", "send_alert")
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// WithRetry overrides webhook retry behavior.
func (a *Alerter) WithRetry(rc resilience.RetryConfig) *Alerter {
	a.retry = rc
	return a
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Rates are judged on the window; spend is cumulative and alerts once per
// crossing.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	w := snap.Window

	minSearches := a.cfg.MinSearches
	if minSearches <= 0 {
		minSearches = 1
	}

	if w.TotalSearches >= minSearches && a.cfg.FailureRateThreshold > 0 &&
		w.FailureRate() > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Resolution failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d searches)",
				w.FailureRate()*100, a.cfg.FailureRateThreshold*100, w.Failures, w.TotalSearches,
			),
			Details: map[string]any{
				"failure_rate": w.FailureRate(),
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       w.Failures,
				"searches":     w.TotalSearches,
			},
			Timestamp: now,
		})
	}

	if w.TotalSearches >= minSearches && a.cfg.EstimationShareThreshold > 0 &&
		w.EstimationShare() > a.cfg.EstimationShareThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertEstimationShare,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of searches needed AI estimation (threshold %.1f%%); reference data may be missing common activities",
				w.EstimationShare()*100, a.cfg.EstimationShareThreshold*100,
			),
			Details: map[string]any{
				"estimation_share": w.EstimationShare(),
				"threshold":        a.cfg.EstimationShareThreshold,
				"estimations":      w.Estimations,
				"searches":         w.TotalSearches,
			},
			Timestamp: now,
		})
	}

	if a.spendCrossed(snap.Total.EstimationCostUSD) {
		alerts = append(alerts, Alert{
			Type:     AlertSpend,
			Severity: "high",
			Message: fmt.Sprintf(
				"Estimation spend $%.2f exceeds threshold $%.2f",
				snap.Total.EstimationCostUSD, a.cfg.SpendThresholdUSD,
			),
			Details: map[string]any{
				"cost_usd":      snap.Total.EstimationCostUSD,
				"threshold_usd": a.cfg.SpendThresholdUSD,
				"estimations":   snap.Total.Estimations,
			},
			Timestamp: now,
		})
	}

	if snap.EstimationStatus == resilience.CircuitOpen.String() {
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "medium",
			Message:   "Estimation service circuit breaker is open; layer 3 is being skipped",
			Timestamp: now,
		})
	}

	return alerts
}

// spendCrossed reports whether cost has newly gone over the spend threshold.
func (a *Alerter) spendCrossed(cost float64) bool {
	if a.cfg.SpendThresholdUSD <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	over := cost > a.cfg.SpendThresholdUSD
	if !over {
		a.spendAlerted = false
		return false
	}
	if a.spendAlerted {
		return false
	}
	a.spendAlerted = true
	return true
}

// SendAlerts delivers alerts to the configured webhook URL, or only logs
// them when none is set. Returns the number of alerts delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if len(alerts) == 0 {
		return 0
	}
	if a.cfg.WebhookURL == "" {
		for _, alert := range alerts {
			zap.L().Warn("monitoring: alert",
				zap.String("type", string(alert.Type)),
				zap.String("severity", alert.Severity),
				zap.String("message", alert.Message),
			)
		}
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
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

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(
			eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
