package model

// IntentType is the coarse kind of activity inferred from the query.
type IntentType string

const (
	IntentTransport  IntentType = "transport"
	IntentEnergy     IntentType = "energy"
	IntentCombustion IntentType = "combustion"
	IntentProduction IntentType = "production"
	IntentUnknown    IntentType = "unknown"
)

// Intent is the classified (type, scope, category, subcategory) tuple for a query.
type Intent struct {
	Type        IntentType `json:"type"`
	Confidence  float64    `json:"confidence"`
	Scope       int        `json:"scope"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory,omitempty"`
}

// DefaultIntent is returned when neither keywords nor units classify a query.
func DefaultIntent() Intent {
	return Intent{Type: IntentUnknown, Confidence: 0.5, Scope: 3, Category: "other"}
}
