package waterfall

import (
	"context"

	"github.com/sells-group/emissions-cli/internal/estimate"
	"github.com/sells-group/emissions-cli/internal/model"
)

// Query is one validated search request as seen by the layers.
type Query struct {
	Activity    string
	Quantity    float64
	Unit        string
	Region      string
	Description string
	Context     string
	Intent      model.Intent
}

// Outcome is the factor a layer settled on.
type Outcome struct {
	Layer       model.Layer
	Factor      float64
	Unit        string
	Confidence  float64
	DataQuality string
	Source      string

	// Match is the winning candidate for layers 0 and 1.
	Match *model.SearchMatch
	// Record is the reference row behind Match, if any.
	Record       *model.EmissionFactorRecord
	Alternatives []model.SearchMatch
	// Description explains proxy factors.
	Description string
	Warnings    []string
	Estimation  *estimate.Response
}

// Layer is one tier of the search. Attempt returns false when the tier has
// nothing acceptable for the query.
type Layer interface {
	Kind() model.Layer
	Attempt(ctx context.Context, q Query) (*Outcome, bool)
}
