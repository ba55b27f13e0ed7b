package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emissions-cli/internal/config"
	"github.com/sells-group/emissions-cli/internal/resilience"
	"github.com/sells-group/emissions-cli/internal/waterfall"
)

func thresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		MinSearches:              5,
		FailureRateThreshold:     0.25,
		EstimationShareThreshold: 0.5,
		SpendThresholdUSD:        5.0,
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func window(w waterfall.Snapshot) *MetricsSnapshot {
	return &MetricsSnapshot{Total: w, Window: w, EstimationStatus: "closed"}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(thresholds())
	alerts := a.Evaluate(window(waterfall.Snapshot{
		TotalSearches: 100, ExactMatches: 60, FuzzyMatches: 30, Estimations: 5, Failures: 5,
		EstimationCostUSD: 1.2,
	}))
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(thresholds())
	alerts := a.Evaluate(window(waterfall.Snapshot{TotalSearches: 20, FuzzyMatches: 12, Failures: 8}))

	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_EstimationShare(t *testing.T) {
	a := NewAlerter(thresholds())
	alerts := a.Evaluate(window(waterfall.Snapshot{TotalSearches: 10, ExactMatches: 3, Estimations: 7}))

	require.Len(t, alerts, 1)
	assert.Equal(t, AlertEstimationShare, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "70.0%")
}

func TestAlerter_Evaluate_SpendIsCumulative(t *testing.T) {
	a := NewAlerter(thresholds())
	snap := &MetricsSnapshot{
		Total:  waterfall.Snapshot{TotalSearches: 900, ExactMatches: 880, Estimations: 20, EstimationCostUSD: 6.5},
		Window: waterfall.Snapshot{},
	}
	alerts := a.Evaluate(snap)

	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSpend, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$6.50")
}

func TestAlerter_Evaluate_SpendAlertsOncePerCrossing(t *testing.T) {
	a := NewAlerter(thresholds())
	spend := func(cost float64) []Alert {
		return a.Evaluate(&MetricsSnapshot{Total: waterfall.Snapshot{Estimations: 20, EstimationCostUSD: cost}})
	}

	require.Len(t, spend(6.5), 1)
	assert.Empty(t, spend(6.5), "same spend on the next tick")
	assert.Empty(t, spend(8.0), "still over the threshold")

	// Counters reset below the threshold; the next crossing alerts again.
	assert.Empty(t, spend(0.4))
	alerts := spend(5.5)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSpend, alerts[0].Type)
}

func TestAlerter_Evaluate_CircuitOpen(t *testing.T) {
	a := NewAlerter(thresholds())
	snap := window(waterfall.Snapshot{})
	snap.EstimationStatus = "open"

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCircuitOpen, alerts[0].Type)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(thresholds())
	snap := window(waterfall.Snapshot{TotalSearches: 10, Estimations: 6, Failures: 4, EstimationCostUSD: 9})
	snap.EstimationStatus = "open"

	types := make(map[AlertType]bool)
	for _, al := range a.Evaluate(snap) {
		types[al.Type] = true
	}
	assert.Len(t, types, 4)
	assert.True(t, types[AlertFailureRate])
	assert.True(t, types[AlertEstimationShare])
	assert.True(t, types[AlertSpend])
	assert.True(t, types[AlertCircuitOpen])
}

func TestAlerter_Evaluate_MinimumSearchesRequired(t *testing.T) {
	a := NewAlerter(thresholds())
	alerts := a.Evaluate(window(waterfall.Snapshot{TotalSearches: 3, Failures: 2, Estimations: 1}))
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_ZeroThresholdsDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	alerts := a.Evaluate(window(waterfall.Snapshot{TotalSearches: 50, Failures: 40, Estimations: 10, EstimationCostUSD: 999}))
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}).WithRetry(fastRetry())
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertSpend, Severity: "high", Message: "test alert 2"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}).WithRetry(fastRetry())
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Message: "test"}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}).WithRetry(fastRetry())
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}).WithRetry(fastRetry())
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}
