// Package monitoring watches the engine's search counters and raises alerts
// when resolution quality or estimation spend drifts past thresholds.
package monitoring

import (
	"sync"
	"time"

	"github.com/sells-group/emissions-cli/internal/model"
	"github.com/sells-group/emissions-cli/internal/waterfall"
)

// Source is what the collector reads. *engine.Engine satisfies it.
type Source interface {
	Stats() waterfall.Snapshot
	EstimationStatus() string
}

// MetricsSnapshot holds a point-in-time view of engine health.
type MetricsSnapshot struct {
	// Total is cumulative since process start.
	Total waterfall.Snapshot `json:"total"`
	// Window covers the searches since the previous collection.
	Window waterfall.Snapshot `json:"window"`

	EstimationStatus string        `json:"estimation_status"`
	WindowDuration   time.Duration `json:"window_duration_ns"`
	CollectedAt      time.Time     `json:"collected_at"`
}

// Collector turns cumulative counters into per-window deltas.
type Collector struct {
	src Source
	now func() time.Time

	mu       sync.Mutex
	prev     waterfall.Snapshot
	prevTime time.Time
}

// NewCollector creates a collector. The first window starts now.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, now: time.Now, prevTime: time.Now()}
}

// Collect reads the counters and advances the window.
func (c *Collector) Collect() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	cur := c.src.Stats()
	snap := &MetricsSnapshot{
		Total:            cur,
		Window:           diff(cur, c.prev),
		EstimationStatus: c.src.EstimationStatus(),
		WindowDuration:   now.Sub(c.prevTime),
		CollectedAt:      now,
	}
	c.prev = cur
	c.prevTime = now
	return snap
}

func diff(cur, prev waterfall.Snapshot) waterfall.Snapshot {
	d := waterfall.Snapshot{
		TotalSearches:     cur.TotalSearches - prev.TotalSearches,
		ExactMatches:      cur.ExactMatches - prev.ExactMatches,
		FuzzyMatches:      cur.FuzzyMatches - prev.FuzzyMatches,
		ProxyMatches:      cur.ProxyMatches - prev.ProxyMatches,
		Estimations:       cur.Estimations - prev.Estimations,
		Failures:          cur.Failures - prev.Failures,
		EstimationCostUSD: cur.EstimationCostUSD - prev.EstimationCostUSD,
	}
	if d.TotalSearches > 0 {
		d.SuccessRate = model.Round(float64(d.Hits())/float64(d.TotalSearches), 4)
	}
	return d
}
