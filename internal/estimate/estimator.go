// Package estimate asks a generative model for an emission factor when no
// reference data matches a query.
package estimate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emissions-cli/internal/model"
)

var (
	// ErrUnavailable means the estimation tier cannot run: disabled, missing
	// credential, circuit open, transport failure or timeout.
	ErrUnavailable = eris.New("estimate: estimation unavailable")
	// ErrInvalidResponse means the service answered with something unusable.
	ErrInvalidResponse = eris.New("estimate: invalid response")
)

// MaxSimilarFactors caps the similar factors kept from a response.
const MaxSimilarFactors = 5

// Request describes the activity to estimate.
type Request struct {
	Activity    string
	Quantity    float64
	Unit        string
	Region      string
	Description string
	Context     string
	Intent      model.Intent
	// FactorsSearched is how many reference rows were searched before
	// falling back to estimation.
	FactorsSearched int
}

// Number accepts a JSON number or a numeric string such as "2.5 kg/litre" or
// "±20%". Anything it cannot read decodes as zero, so one sloppy optional
// field does not discard the whole response.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	if v, err := parseNumber(b); err == nil {
		*n = Number(v)
	}
	return nil
}

// parseNumber reads a JSON number or numeric string.
func parseNumber(b []byte) (float64, error) {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return 0, eris.Wrap(err, "estimate: number")
	}
	v, ok := model.ParseFactor(strings.TrimLeft(strings.TrimSpace(s), "±~≈ "))
	if !ok {
		return 0, eris.Errorf("estimate: %q is not a number", s)
	}
	return v, nil
}

// SimilarFactor is a reference factor the model considered close.
type SimilarFactor struct {
	Activity string `json:"activity"`
	Factor   Number `json:"factor"`
	Unit     string `json:"unit"`
	Source   string `json:"source,omitempty"`
}

// Uncertainty bounds the estimated factor.
type Uncertainty struct {
	Low        Number `json:"low"`
	High       Number `json:"high"`
	Percentage Number `json:"percentage"`
}

// Response is the strict JSON document requested from the service.
type Response struct {
	EstimatedEmissionFactor *Number         `json:"estimated_emission_factor"`
	Unit                    string          `json:"unit"`
	Confidence              *Number         `json:"confidence"`
	DataQuality             string          `json:"data_quality"`
	Reasoning               string          `json:"reasoning"`
	SimilarFactors          []SimilarFactor `json:"similar_factors"`
	UncertaintyRange        *Uncertainty    `json:"uncertainty_range"`
	RecommendedNextSteps    []string        `json:"recommended_next_steps"`
	ComplianceWarning       string          `json:"compliance_warning"`

	// CostUSD is the estimated cost of the call that produced the response.
	CostUSD float64 `json:"-"`
	Model   string  `json:"-"`
}

// Factor returns the estimated factor, or false when the response has none.
func (r *Response) Factor() (float64, bool) {
	if r == nil || r.EstimatedEmissionFactor == nil {
		return 0, false
	}
	return float64(*r.EstimatedEmissionFactor), true
}

// Validate rejects responses without a factor or with a factor outside
// (0, maxFactor].
func (r *Response) Validate(maxFactor float64) error {
	f, ok := r.Factor()
	if !ok {
		return eris.Wrap(ErrInvalidResponse, "no estimated_emission_factor")
	}
	if f <= 0 {
		return eris.Wrapf(ErrInvalidResponse, "non-positive factor %v", f)
	}
	if f > maxFactor {
		return eris.Wrapf(ErrInvalidResponse, "factor %v exceeds %v", f, maxFactor)
	}
	return nil
}

// Estimator produces a factor estimate for an activity no reference row
// matched. Implementations return ErrUnavailable (wrapped) when they cannot
// answer. A response returned together with an error carries only the cost
// of the failed call.
type Estimator interface {
	Estimate(ctx context.Context, req Request) (*Response, error)
}

// Disabled is an Estimator that is never available.
type Disabled struct{}

// Estimate always returns ErrUnavailable.
func (Disabled) Estimate(context.Context, Request) (*Response, error) {
	return nil, eris.Wrap(ErrUnavailable, "disabled")
}

// parseResponse decodes the JSON object in a model reply, tolerating code
// fences and surrounding prose. Only estimated_emission_factor must be a
// readable number; similar factors whose factor is unreadable or zero are
// dropped.
func parseResponse(text string) (*Response, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.Wrap(ErrInvalidResponse, "empty reply")
	}

	var raw struct {
		Factor json.RawMessage `json:"estimated_emission_factor"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrapf(ErrInvalidResponse, "decode: %v", err)
	}
	if len(raw.Factor) > 0 && string(raw.Factor) != "null" {
		if _, err := parseNumber(raw.Factor); err != nil {
			return nil, eris.Wrapf(ErrInvalidResponse, "estimated_emission_factor: %v", err)
		}
	}

	var resp Response
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, eris.Wrapf(ErrInvalidResponse, "decode: %v", err)
	}

	similar := resp.SimilarFactors[:0]
	for _, sf := range resp.SimilarFactors {
		if sf.Factor > 0 {
			similar = append(similar, sf)
		}
	}
	if len(similar) > MaxSimilarFactors {
		similar = similar[:MaxSimilarFactors]
	}
	resp.SimilarFactors = similar
	return &resp, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
