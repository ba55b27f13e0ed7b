package waterfall

import (
	"sync"

	"github.com/sells-group/emissions-cli/internal/model"
)

// Stats counts searches by outcome. It is safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	total    int64
	hits     [model.LayerFailure]int64
	failures int64
	costUSD  float64
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Snapshot is a consistent copy of the counters.
type Snapshot struct {
	TotalSearches     int64   `json:"total_searches"`
	ExactMatches      int64   `json:"exact_matches"`
	FuzzyMatches      int64   `json:"fuzzy_matches"`
	ProxyMatches      int64   `json:"proxy_matches"`
	Estimations       int64   `json:"ai_estimations"`
	Failures          int64   `json:"failures"`
	SuccessRate       float64 `json:"success_rate"`
	EstimationCostUSD float64 `json:"estimation_cost_usd"`
}

// Record counts one finished search. Any layer outside 0-3 counts as a
// failure.
func (s *Stats) Record(layer model.Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if layer >= model.LayerExact && layer < model.LayerFailure {
		s.hits[layer]++
		return
	}
	s.failures++
}

// AddCost adds the cost of an estimation call, successful or not.
func (s *Stats) AddCost(usd float64) {
	if usd <= 0 {
		return
	}
	s.mu.Lock()
	s.costUSD += usd
	s.mu.Unlock()
}

// Snapshot copies the counters under the lock.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalSearches:     s.total,
		ExactMatches:      s.hits[model.LayerExact],
		FuzzyMatches:      s.hits[model.LayerFuzzy],
		ProxyMatches:      s.hits[model.LayerProxy],
		Estimations:       s.hits[model.LayerEstimation],
		Failures:          s.failures,
		EstimationCostUSD: s.costUSD,
	}
	if s.total > 0 {
		snap.SuccessRate = model.Round(float64(s.total-s.failures)/float64(s.total), 4)
	}
	return snap
}

// Hits returns the number of successful searches.
func (s Snapshot) Hits() int64 {
	return s.ExactMatches + s.FuzzyMatches + s.ProxyMatches + s.Estimations
}

// FailureRate is the fraction of searches that found nothing.
func (s Snapshot) FailureRate() float64 {
	if s.TotalSearches == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.TotalSearches)
}

// EstimationShare is the fraction of searches answered by estimation.
func (s Snapshot) EstimationShare() float64 {
	if s.TotalSearches == 0 {
		return 0
	}
	return float64(s.Estimations) / float64(s.TotalSearches)
}
