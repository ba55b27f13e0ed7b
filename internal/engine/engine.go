// Package engine is the single entry point for resolving an activity into
// an emissions estimate.
package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/config"
	"github.com/sells-group/emissions-cli/internal/estimate"
	"github.com/sells-group/emissions-cli/internal/factors"
	"github.com/sells-group/emissions-cli/internal/intent"
	"github.com/sells-group/emissions-cli/internal/match"
	"github.com/sells-group/emissions-cli/internal/model"
	"github.com/sells-group/emissions-cli/internal/resilience"
	"github.com/sells-group/emissions-cli/internal/units"
	"github.com/sells-group/emissions-cli/internal/waterfall"
)

// DefaultRegion is used when neither the request nor the config names one.
const DefaultRegion = "India"

// SuggestionNoMatch is returned with every NO_MATCH result.
const SuggestionNoMatch = "Provide supplier-specific emission data, or a more specific activity " +
	"(fuel type, material grade, transport mode) with a standard unit such as litre, kg, kWh or km"

// Request is one activity to resolve.
type Request struct {
	ActivityType string  `json:"activity_type"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	Region       string  `json:"region,omitempty"`
	Description  string  `json:"description,omitempty"`
	Context      string  `json:"context,omitempty"`
}

// Engine classifies requests and runs them through the search layers. It is
// safe for concurrent use.
type Engine struct {
	classifier    *intent.Classifier
	exec          *waterfall.Executor
	estimator     estimate.Estimator
	defaultRegion string
	log           *zap.Logger
}

// New wires the layers over a loaded store. A nil estimator, or estimation
// disabled in cfg, leaves layer 3 permanently unavailable. A nil rules uses
// the built-in tables.
func New(cfg *config.Config, store *factors.Store, est estimate.Estimator, rules *waterfall.Rules) *Engine {
	if rules == nil {
		rules = waterfall.DefaultRules()
	}
	if est == nil || !cfg.Estimation.Enabled {
		est = estimate.Disabled{}
	}

	matcher := match.New(match.Options{
		TextThreshold:   cfg.Search.TextThreshold,
		UnitThreshold:   cfg.Search.UnitThreshold,
		MinRelevance:    cfg.Search.MinRelevance,
		MaxFactor:       cfg.Search.MaxFactor,
		MaxAlternatives: cfg.Search.MaxAlternatives,
		Nudges:          rules.Nudges,
	})

	stats := waterfall.NewStats()
	exec := waterfall.NewExecutor(stats,
		waterfall.NewExactLayer(store),
		waterfall.NewFuzzyLayer(store, matcher),
		waterfall.NewProxyLayer(rules, matcher.Options().UnitThreshold),
		waterfall.NewEstimationLayer(est, cfg.Estimation.MaxFactor, store.Count(), stats),
	)

	region := strings.TrimSpace(cfg.Factors.DefaultRegion)
	if region == "" {
		region = DefaultRegion
	}

	return &Engine{
		classifier:    intent.New(),
		exec:          exec,
		estimator:     est,
		defaultRegion: region,
		log:           zap.L().With(zap.String("component", "engine")),
	}
}

// Stats returns a consistent snapshot of the search counters.
func (e *Engine) Stats() waterfall.Snapshot {
	return e.exec.Stats().Snapshot()
}

// EstimationStatus reports "disabled" or the estimator's circuit state.
func (e *Engine) EstimationStatus() string {
	if s, ok := e.estimator.(interface{ Breaker() resilience.CircuitState }); ok {
		return s.Breaker().String()
	}
	return "disabled"
}

// Resolve finds an emission factor for the request and computes co2e. It
// never panics and never returns an error: every failure is a result with
// Success false.
func (e *Engine) Resolve(ctx context.Context, req Request) (res model.EmissionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("engine: resolve panicked",
				zap.String("activity", req.ActivityType),
				zap.String("panic", fmt.Sprint(r)),
			)
			res = model.Failure(model.ErrCodeNoMatch, "internal error while resolving activity", SuggestionNoMatch)
		}
	}()

	activity := strings.TrimSpace(req.ActivityType)
	unit := strings.TrimSpace(req.Unit)
	if msg := validate(activity, unit, req.Quantity); msg != "" {
		e.exec.Stats().Record(model.LayerFailure)
		return model.Failure(model.ErrCodeInputInvalid, msg,
			"Provide a non-empty activity_type and unit and a positive quantity")
	}

	region := strings.TrimSpace(req.Region)
	if region == "" {
		region = e.defaultRegion
	}
	hint := strings.TrimSpace(req.Description + " " + req.Context)
	in := e.classifier.Classify(activity, unit, hint)

	q := waterfall.Query{
		Activity:    activity,
		Quantity:    req.Quantity,
		Unit:        unit,
		Region:      region,
		Description: req.Description,
		Context:     req.Context,
		Intent:      in,
	}

	out := e.exec.Run(ctx, q)
	if out == nil || !(out.Factor > 0) || math.IsInf(out.Factor, 0) {
		e.log.Info("engine: no factor found",
			zap.String("activity", activity),
			zap.String("unit", unit),
			zap.String("intent", string(in.Type)),
		)
		res = model.Failure(model.ErrCodeNoMatch,
			fmt.Sprintf("no emission factor found for %q in %s", activity, unit),
			SuggestionNoMatch)
		res.Intent = &in
		res.Scope = in.Scope
		res.Category = in.Category
		res.Subcategory = in.Subcategory
		return res
	}

	return shape(q, out)
}

func validate(activity, unit string, quantity float64) string {
	switch {
	case activity == "":
		return "activity_type is required"
	case unit == "":
		return "unit is required"
	case math.IsNaN(quantity) || math.IsInf(quantity, 0):
		return "quantity must be a finite number"
	case quantity <= 0:
		return fmt.Sprintf("quantity must be positive, got %v", quantity)
	}
	return ""
}

func shape(q waterfall.Query, out *waterfall.Outcome) model.EmissionResult {
	in := q.Intent
	res := model.EmissionResult{
		Success:        true,
		CO2eKg:         model.Round(q.Quantity*out.Factor, 2),
		EmissionFactor: out.Factor,
		FactorUnit:     out.Unit,
		Method:         out.Layer.String(),
		Layer:          out.Layer,
		Confidence:     math.Max(0, math.Min(1, out.Confidence)),
		DataQuality:    out.DataQuality,
		Source:         out.Source,
		Scope:          in.Scope,
		Category:       in.Category,
		Subcategory:    in.Subcategory,
		Intent:         &in,
		Alternatives:   out.Alternatives,
	}

	if m := out.Match; m != nil {
		res.MatchDetails = &model.MatchDetails{
			MatchedLabel: m.Label,
			MatchedUnit:  m.Unit,
			Dataset:      m.Dataset,
			Relevance:    m.Relevance,
			TextScore:    m.TextScore,
			UnitScore:    m.UnitScore,
			Year:         m.Year,
			Description:  out.Description,
		}
		if m.ValidationWarning != "" {
			res.ValidationWarnings = append(res.ValidationWarnings, m.ValidationWarning)
		}
	}

	if r := out.Record; r != nil && r.HasGasBreakdown() {
		res.GasBreakdown = &model.GasBreakdown{
			CO2Kg: scaled(q.Quantity, r.CO2),
			CH4Kg: scaled(q.Quantity, r.CH4),
			N2OKg: scaled(q.Quantity, r.N2O),
		}
	}

	if out.Layer != model.LayerEstimation && units.Compatibility(q.Unit, out.Unit) < 90 {
		res.ValidationWarnings = append(res.ValidationWarnings,
			fmt.Sprintf("factor is denominated in %q but quantity was given in %q", out.Unit, q.Unit))
	}
	res.ValidationWarnings = append(res.ValidationWarnings, out.Warnings...)

	if est := out.Estimation; est != nil {
		details := &model.EstimationDetails{
			Reasoning:            est.Reasoning,
			RecommendedNextSteps: est.RecommendedNextSteps,
			ComplianceWarning:    est.ComplianceWarning,
			CostUSD:              est.CostUSD,
		}
		if details.ComplianceWarning == "" {
			details.ComplianceWarning = waterfall.WarnVerify
		}
		if u := est.UncertaintyRange; u != nil {
			details.Uncertainty = &model.UncertaintyRange{
				Low:        float64(u.Low),
				High:       float64(u.High),
				Percentage: float64(u.Percentage),
			}
		}
		res.Estimation = details
	}
	return res
}

func scaled(quantity float64, factor *float64) *float64 {
	if factor == nil {
		return nil
	}
	v := model.Round(quantity*(*factor), 4)
	return &v
}
