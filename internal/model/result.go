package model

import "math"

// Layer is the tier that produced a result. LayerFailure marks exhaustion.
type Layer int

const (
	LayerExact Layer = iota
	LayerFuzzy
	LayerProxy
	LayerEstimation
	LayerFailure
)

func (l Layer) String() string {
	switch l {
	case LayerExact:
		return "exact_match"
	case LayerFuzzy:
		return "fuzzy_match"
	case LayerProxy:
		return "category_proxy"
	case LayerEstimation:
		return "ai_estimation"
	case LayerFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ErrorCode classifies a failed result for callers.
type ErrorCode string

const (
	ErrCodeInputInvalid ErrorCode = "INPUT_INVALID"
	ErrCodeNoMatch      ErrorCode = "NO_MATCH"
)

// Data quality labels.
const (
	QualityHigh      = "High"
	QualityMedium    = "Medium"
	QualityProxy     = "Low - Proxy"
	QualityEstimated = "Estimated - Medium"
)

// SearchMatch is one scored candidate produced while evaluating a layer.
type SearchMatch struct {
	Source            string                `json:"source"`
	Dataset           Dataset               `json:"dataset,omitempty"`
	Factor            float64               `json:"factor"`
	Unit              string                `json:"unit"`
	Relevance         float64               `json:"relevance"`
	TextScore         float64               `json:"text_score,omitempty"`
	UnitScore         float64               `json:"unit_score,omitempty"`
	Year              int                   `json:"year,omitempty"`
	Label             string                `json:"label"`
	ValidationWarning string                `json:"validation_warning,omitempty"`
	Record            *EmissionFactorRecord `json:"-"`
}

// MatchDetails explains how the winning factor was selected.
type MatchDetails struct {
	MatchedLabel string  `json:"matched_label"`
	MatchedUnit  string  `json:"matched_unit"`
	Dataset      Dataset `json:"dataset,omitempty"`
	Relevance    float64 `json:"relevance,omitempty"`
	TextScore    float64 `json:"text_score,omitempty"`
	UnitScore    float64 `json:"unit_score,omitempty"`
	Year         int     `json:"year,omitempty"`
	Description  string  `json:"description,omitempty"`
}

// GasBreakdown splits co2e into gas-specific masses when sub-factors exist.
type GasBreakdown struct {
	CO2Kg *float64 `json:"co2_kg,omitempty"`
	CH4Kg *float64 `json:"ch4_kg,omitempty"`
	N2OKg *float64 `json:"n2o_kg,omitempty"`
}

// UncertaintyRange bounds an estimated factor.
type UncertaintyRange struct {
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Percentage float64 `json:"percentage"`
}

// EstimationDetails carries the narrative parts of a layer-3 estimate.
type EstimationDetails struct {
	Reasoning            string            `json:"reasoning,omitempty"`
	Uncertainty          *UncertaintyRange `json:"uncertainty_range,omitempty"`
	RecommendedNextSteps []string          `json:"recommended_next_steps,omitempty"`
	ComplianceWarning    string            `json:"compliance_warning"`
	CostUSD              float64           `json:"cost_usd,omitempty"`
}

// EmissionResult is the single output contract of the engine.
type EmissionResult struct {
	Success bool `json:"success"`

	CO2eKg             float64            `json:"co2e_kg"`
	EmissionFactor     float64            `json:"emission_factor,omitempty"`
	FactorUnit         string             `json:"factor_unit,omitempty"`
	Method             string             `json:"method,omitempty"`
	Layer              Layer              `json:"layer"`
	Confidence         float64            `json:"confidence"`
	DataQuality        string             `json:"data_quality,omitempty"`
	Source             string             `json:"source,omitempty"`
	Scope              int                `json:"scope,omitempty"`
	Category           string             `json:"category,omitempty"`
	Subcategory        string             `json:"subcategory,omitempty"`
	Intent             *Intent            `json:"intent,omitempty"`
	MatchDetails       *MatchDetails      `json:"match_details,omitempty"`
	GasBreakdown       *GasBreakdown      `json:"gas_breakdown,omitempty"`
	Alternatives       []SearchMatch      `json:"alternatives,omitempty"`
	ValidationWarnings []string           `json:"validation_warnings,omitempty"`
	Estimation         *EstimationDetails `json:"estimation,omitempty"`

	Error      string    `json:"error,omitempty"`
	ErrorCode  ErrorCode `json:"error_code,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// Failure builds an unsuccessful result.
func Failure(code ErrorCode, msg, suggestion string) EmissionResult {
	return EmissionResult{
		Layer:      LayerFailure,
		Error:      msg,
		ErrorCode:  code,
		Suggestion: suggestion,
	}
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
