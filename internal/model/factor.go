package model

import "strings"

// Dataset identifies one of the reference factor tables, in search priority order.
type Dataset string

const (
	// DatasetRegional is the regional/national table searched by exact match (layer 0).
	DatasetRegional Dataset = "regional"
	// DatasetInternational is the international standard table (layer 1).
	DatasetInternational Dataset = "international"
	// DatasetSecondary is the secondary national table (layer 1).
	DatasetSecondary Dataset = "secondary"
)

// Datasets lists every dataset in priority order.
var Datasets = []Dataset{DatasetRegional, DatasetInternational, DatasetSecondary}

// Priority returns the dataset's search priority (lower is searched first).
func (d Dataset) Priority() int {
	for i, ds := range Datasets {
		if ds == d {
			return i
		}
	}
	return len(Datasets)
}

// Valid reports whether d names a known dataset.
func (d Dataset) Valid() bool {
	return d.Priority() < len(Datasets)
}

// EmissionFactorRecord is one row of a reference dataset. Records are
// immutable once loaded.
type EmissionFactorRecord struct {
	Dataset  Dataset `json:"dataset"`
	Position int     `json:"position"`

	// Activity is the primary label; regional rows are matched on it exactly.
	Activity string `json:"activity,omitempty"`
	Type     string `json:"type,omitempty"`
	Name     string `json:"name,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	Tag      string `json:"tag,omitempty"`

	Unit string `json:"unit"`

	// Value is the factor exactly as stored; see ParseFactor.
	Value string `json:"value"`

	CO2 *float64 `json:"co2,omitempty"`
	CH4 *float64 `json:"ch4,omitempty"`
	N2O *float64 `json:"n2o,omitempty"`

	Source  string `json:"source,omitempty"`
	Year    int    `json:"year,omitempty"`
	Quality string `json:"quality,omitempty"`
	Region  string `json:"region,omitempty"`
}

// Label returns a human readable label for the record.
func (r EmissionFactorRecord) Label() string {
	if r.Activity != "" && r.Name == "" {
		return r.Activity
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{r.Type, r.Name, r.Subtype, r.Tag} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return r.Activity
	}
	return strings.Join(parts, " - ")
}

// SearchText concatenates every label field for fuzzy comparison.
func (r EmissionFactorRecord) SearchText() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{r.Activity, r.Type, r.Name, r.Subtype, r.Tag} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// HasGasBreakdown reports whether any gas-specific sub-factor is present.
func (r EmissionFactorRecord) HasGasBreakdown() bool {
	return r.CO2 != nil || r.CH4 != nil || r.N2O != nil
}
