package waterfall

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/estimate"
	"github.com/sells-group/emissions-cli/internal/factors"
	"github.com/sells-group/emissions-cli/internal/match"
	"github.com/sells-group/emissions-cli/internal/model"
	"github.com/sells-group/emissions-cli/internal/units"
)

// Fixed confidences.
const (
	ExactConfidence         = 0.99
	ProxyConfidence         = 0.65
	MaxEstimationConfidence = 0.7
	defaultEstimationConf   = 0.5
)

// Warnings attached to every estimated result.
const (
	WarnEstimated = "Emission factor was estimated by an AI model and has not been verified against a reference dataset"
	WarnVerify    = "Verify the estimate with supplier-specific data before regulatory reporting"
)

// ExactLayer looks the activity up in the regional dataset by exact
// (activity, unit) equality.
type ExactLayer struct {
	records []model.EmissionFactorRecord
	log     *zap.Logger
}

// NewExactLayer creates layer 0 over the regional rows.
func NewExactLayer(store *factors.Store) *ExactLayer {
	return &ExactLayer{
		records: store.Regional(),
		log:     zap.L().With(zap.String("component", "waterfall.exact")),
	}
}

func (l *ExactLayer) Kind() model.Layer { return model.LayerExact }

// Attempt returns the first row, in dataset order, whose activity and unit
// equal the query's ignoring case and surrounding space.
func (l *ExactLayer) Attempt(_ context.Context, q Query) (*Outcome, bool) {
	activity := strings.TrimSpace(q.Activity)
	unit := strings.TrimSpace(q.Unit)

	for i := range l.records {
		rec := &l.records[i]
		if !strings.EqualFold(strings.TrimSpace(rec.Activity), activity) ||
			!strings.EqualFold(strings.TrimSpace(rec.Unit), unit) {
			continue
		}
		factor, err := factors.Value(*rec)
		if err != nil || factor <= 0 {
			l.log.Debug("waterfall: exact row has no usable factor",
				zap.Int("position", rec.Position), zap.String("value", rec.Value))
			continue
		}
		if valid, reason := units.Validate(q.Activity, q.Unit, rec.Unit, factor); !valid {
			l.log.Debug("waterfall: exact row rejected",
				zap.Int("position", rec.Position), zap.String("reason", reason))
			continue
		}

		quality := rec.Quality
		if quality == "" {
			quality = model.QualityHigh
		}
		m := model.SearchMatch{
			Source:    rec.Source,
			Dataset:   rec.Dataset,
			Factor:    factor,
			Unit:      rec.Unit,
			Relevance: 100,
			TextScore: 100,
			UnitScore: 100,
			Year:      rec.Year,
			Label:     rec.Label(),
			Record:    rec,
		}
		return &Outcome{
			Factor:      factor,
			Unit:        rec.Unit,
			Confidence:  ExactConfidence,
			DataQuality: quality,
			Source:      rec.Source,
			Match:       &m,
			Record:      rec,
		}, true
	}
	return nil, false
}

// FuzzyLayer scores the international and secondary datasets.
type FuzzyLayer struct {
	matcher *match.Matcher
	sets    [][]model.EmissionFactorRecord
	log     *zap.Logger
}

// NewFuzzyLayer creates layer 1.
func NewFuzzyLayer(store *factors.Store, matcher *match.Matcher) *FuzzyLayer {
	return &FuzzyLayer{
		matcher: matcher,
		sets:    [][]model.EmissionFactorRecord{store.International(), store.Secondary()},
		log:     zap.L().With(zap.String("component", "waterfall.fuzzy")),
	}
}

func (l *FuzzyLayer) Kind() model.Layer { return model.LayerFuzzy }

func (l *FuzzyLayer) Attempt(_ context.Context, q Query) (*Outcome, bool) {
	res := l.matcher.Match(match.Query{Activity: q.Activity, Unit: q.Unit, Intent: q.Intent}, l.sets...)
	if res.Best == nil {
		l.log.Debug("waterfall: no fuzzy candidate",
			zap.String("activity", q.Activity),
			zap.Int("evaluated", res.Evaluated),
			zap.Any("rejected", res.Rejected),
		)
		return nil, false
	}

	best := res.Best
	conf := match.Confidence(best.Relevance)
	return &Outcome{
		Factor:       best.Factor,
		Unit:         best.Unit,
		Confidence:   conf,
		DataQuality:  match.Quality(conf),
		Source:       best.Source,
		Match:        best,
		Record:       best.Record,
		Alternatives: res.Alternatives,
	}, true
}

// ProxyLayer falls back to a category-average factor for the query's
// subcategory.
type ProxyLayer struct {
	rules         *Rules
	unitThreshold float64
}

// NewProxyLayer creates layer 2. The proxy unit must score at least
// unitThreshold against the query unit.
func NewProxyLayer(rules *Rules, unitThreshold float64) *ProxyLayer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &ProxyLayer{rules: rules, unitThreshold: unitThreshold}
}

func (l *ProxyLayer) Kind() model.Layer { return model.LayerProxy }

func (l *ProxyLayer) Attempt(_ context.Context, q Query) (*Outcome, bool) {
	p, ok := l.rules.Proxy(q.Intent.Subcategory)
	if !ok {
		return nil, false
	}
	if units.Compatibility(q.Unit, p.Unit) < l.unitThreshold {
		return nil, false
	}
	if valid, _ := units.Validate(q.Activity, q.Unit, p.Unit, p.Factor); !valid {
		return nil, false
	}
	return &Outcome{
		Factor:      p.Factor,
		Unit:        p.Unit,
		Confidence:  ProxyConfidence,
		DataQuality: model.QualityProxy,
		Source:      p.Source,
		Description: p.Description,
		Match: &model.SearchMatch{
			Source: p.Source,
			Factor: p.Factor,
			Unit:   p.Unit,
			Label:  p.Description,
		},
	}, true
}

// EstimationLayer asks an Estimator for a factor and sanity-checks it.
type EstimationLayer struct {
	est       estimate.Estimator
	maxFactor float64
	searched  int
	stats     *Stats
	log       *zap.Logger
}

// NewEstimationLayer creates layer 3. searched is the number of reference
// rows available to the earlier layers; stats, when set, accrues call cost.
func NewEstimationLayer(est estimate.Estimator, maxFactor float64, searched int, stats *Stats) *EstimationLayer {
	if est == nil {
		est = estimate.Disabled{}
	}
	if maxFactor <= 0 {
		maxFactor = 100000
	}
	return &EstimationLayer{
		est:       est,
		maxFactor: maxFactor,
		searched:  searched,
		stats:     stats,
		log:       zap.L().With(zap.String("component", "waterfall.estimation")),
	}
}

func (l *EstimationLayer) Kind() model.Layer { return model.LayerEstimation }

func (l *EstimationLayer) Attempt(ctx context.Context, q Query) (*Outcome, bool) {
	resp, err := l.est.Estimate(ctx, estimate.Request{
		Activity:        q.Activity,
		Quantity:        q.Quantity,
		Unit:            q.Unit,
		Region:          q.Region,
		Description:     q.Description,
		Context:         q.Context,
		Intent:          q.Intent,
		FactorsSearched: l.searched,
	})
	if err != nil {
		if resp != nil && l.stats != nil {
			l.stats.AddCost(resp.CostUSD)
		}
		if errors.Is(err, estimate.ErrInvalidResponse) {
			l.log.Warn("waterfall: estimation response rejected", zap.Error(err))
		} else {
			l.log.Info("waterfall: estimation unavailable", zap.Error(err))
		}
		return nil, false
	}
	if l.stats != nil {
		l.stats.AddCost(resp.CostUSD)
	}
	if err := resp.Validate(l.maxFactor); err != nil {
		l.log.Warn("waterfall: estimated factor rejected",
			zap.String("activity", q.Activity), zap.Error(err))
		return nil, false
	}

	factor, _ := resp.Factor()
	conf := defaultEstimationConf
	if resp.Confidence != nil {
		if c := float64(*resp.Confidence); c > 0 && c <= 1 {
			conf = c
		}
	}
	conf = math.Min(conf, MaxEstimationConfidence)

	quality := resp.DataQuality
	if quality == "" {
		quality = model.QualityEstimated
	}
	unit := resp.Unit
	if unit == "" {
		unit = q.Unit
	}

	alts := make([]model.SearchMatch, 0, len(resp.SimilarFactors))
	for _, sf := range resp.SimilarFactors {
		alts = append(alts, model.SearchMatch{
			Source: sf.Source,
			Factor: float64(sf.Factor),
			Unit:   sf.Unit,
			Label:  sf.Activity,
		})
	}

	warnings := []string{WarnEstimated, WarnVerify}
	if resp.ComplianceWarning != "" {
		warnings = append(warnings, resp.ComplianceWarning)
	}

	source := "AI estimation"
	if resp.Model != "" {
		source += " (" + resp.Model + ")"
	}
	return &Outcome{
		Factor:       factor,
		Unit:         unit,
		Confidence:   conf,
		DataQuality:  quality,
		Source:       source,
		Alternatives: alts,
		Warnings:     warnings,
		Estimation:   resp,
	}, true
}
