package match

import (
	"math"
	"sort"

	"github.com/sells-group/emissions-cli/internal/model"
	"github.com/sells-group/emissions-cli/internal/units"
)

// Relevance weights.
const (
	textWeight = 0.7
	unitWeight = 0.3
)

// Options configures candidate filtering.
type Options struct {
	TextThreshold   float64 // minimum token-set ratio
	UnitThreshold   float64 // minimum unit compatibility
	MinRelevance    float64 // minimum relevance for the winner
	MaxFactor       float64 // plausibility ceiling
	MaxAlternatives int
	Nudges          []Nudge
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		TextThreshold:   75,
		UnitThreshold:   50,
		MinRelevance:    70,
		MaxFactor:       units.MaxReferenceFactor,
		MaxAlternatives: 3,
		Nudges:          DefaultNudges(),
	}
}

// Query is what the matcher compares records against.
type Query struct {
	Activity string
	Unit     string
	Intent   model.Intent
}

// Rejection reasons, counted per search for diagnostics.
const (
	RejectText      = "text_score"
	RejectUnit      = "unit_score"
	RejectBasis     = "energy_basis"
	RejectFactor    = "factor_range"
	RejectValidator = "validator"
)

// Result is the outcome of scoring a set of datasets.
type Result struct {
	Best         *model.SearchMatch
	Alternatives []model.SearchMatch
	Evaluated    int
	Rejected     map[string]int
}

// Matcher scores reference records with text similarity and unit compatibility.
type Matcher struct {
	opts Options
}

// New creates a matcher. Zero thresholds fall back to the defaults.
func New(opts Options) *Matcher {
	def := DefaultOptions()
	if opts.TextThreshold <= 0 {
		opts.TextThreshold = def.TextThreshold
	}
	if opts.UnitThreshold <= 0 {
		opts.UnitThreshold = def.UnitThreshold
	}
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = def.MinRelevance
	}
	if opts.MaxFactor <= 0 {
		opts.MaxFactor = def.MaxFactor
	}
	if opts.MaxAlternatives < 0 {
		opts.MaxAlternatives = 0
	}
	return &Matcher{opts: opts}
}

// Options returns the matcher's effective options.
func (m *Matcher) Options() Options { return m.opts }

type scored struct {
	match model.SearchMatch
	raw   float64
	order int
}

// Match scores every record of every dataset, in order, and returns the best
// candidate whose relevance reaches MinRelevance. Ties keep the earlier
// record. Result.Best is nil when nothing qualifies.
func (m *Matcher) Match(q Query, datasets ...[]model.EmissionFactorRecord) Result {
	res := Result{Rejected: make(map[string]int)}
	productionMass := q.Intent.Type == model.IntentProduction && units.IsMass(q.Unit)

	var accepted []scored
	order := 0
	for _, records := range datasets {
		for i := range records {
			rec := &records[i]
			res.Evaluated++
			order++

			textScore := TokenSetRatio(q.Activity, rec.SearchText())
			if textScore < m.opts.TextThreshold {
				res.Rejected[RejectText]++
				continue
			}
			unitScore := units.Compatibility(q.Unit, rec.Unit)
			if unitScore < m.opts.UnitThreshold {
				res.Rejected[RejectUnit]++
				continue
			}
			if productionMass && units.HasEnergyToken(rec.Unit) {
				res.Rejected[RejectBasis]++
				continue
			}

			raw := textWeight*textScore + unitWeight*unitScore
			raw += applyNudges(m.opts.Nudges, q.Activity, rec.SearchText())

			factor, ok := rec.Factor()
			if !ok || factor <= 0 || factor > m.opts.MaxFactor {
				res.Rejected[RejectFactor]++
				continue
			}
			if valid, _ := units.Validate(q.Activity, q.Unit, rec.Unit, factor); !valid {
				res.Rejected[RejectValidator]++
				continue
			}

			accepted = append(accepted, scored{
				raw:   raw,
				order: order,
				match: model.SearchMatch{
					Source:    rec.Source,
					Dataset:   rec.Dataset,
					Factor:    factor,
					Unit:      rec.Unit,
					Relevance: clamp(model.Round(raw, 2), 0, 100),
					TextScore: textScore,
					UnitScore: unitScore,
					Year:      rec.Year,
					Label:     rec.Label(),
					Record:    rec,
				},
			})
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].raw != accepted[j].raw {
			return accepted[i].raw > accepted[j].raw
		}
		return accepted[i].order < accepted[j].order
	})

	if len(accepted) == 0 || accepted[0].raw < m.opts.MinRelevance {
		return res
	}
	best := accepted[0].match
	res.Best = &best

	for _, s := range accepted[1:] {
		if len(res.Alternatives) >= m.opts.MaxAlternatives {
			break
		}
		if s.raw < m.opts.MinRelevance {
			break
		}
		res.Alternatives = append(res.Alternatives, s.match)
	}
	return res
}

// Confidence maps relevance to a confidence, capped at 0.95.
func Confidence(relevance float64) float64 {
	return math.Min(0.95, relevance/100)
}

// Quality labels a fuzzy-match confidence.
func Quality(confidence float64) string {
	if confidence > 0.85 {
		return model.QualityHigh
	}
	return model.QualityMedium
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
