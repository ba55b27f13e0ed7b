package match

import "strings"

// Nudge adjusts the relevance of candidates for one literal query. Nudges
// are deliberate exceptions for known ambiguous activities, not a general
// heuristic.
type Nudge struct {
	Query         string   `yaml:"query" json:"query"`
	LabelContains []string `yaml:"label_contains" json:"label_contains"`
	Delta         float64  `yaml:"delta" json:"delta"`
	Note          string   `yaml:"note,omitempty" json:"note,omitempty"`
}

// DefaultNudges is the built-in exception table.
func DefaultNudges() []Nudge {
	return []Nudge{
		{
			Query:         "diesel",
			LabelContains: []string{"biodiesel"},
			Delta:         -30,
			Note:          "plain diesel means fossil diesel, not biodiesel",
		},
		{
			Query:         "diesel",
			LabelContains: []string{"mineral diesel", "development diesel", "100% mineral"},
			Delta:         10,
			Note:          "prefer unblended mineral diesel factors",
		},
	}
}

// applyNudges returns the total adjustment for a query/label pair.
func applyNudges(nudges []Nudge, query, label string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	l := strings.ToLower(label)
	var delta float64
	for _, n := range nudges {
		if strings.ToLower(n.Query) != q {
			continue
		}
		for _, phrase := range n.LabelContains {
			if strings.Contains(l, strings.ToLower(phrase)) {
				delta += n.Delta
				break
			}
		}
	}
	return delta
}
