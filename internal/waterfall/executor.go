// Package waterfall runs the tiered factor search: exact regional lookup,
// fuzzy matching, category proxies and finally estimation, stopping at the
// first tier that produces an acceptable factor.
package waterfall

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/model"
)

// Executor runs layers in order and records the outcome of every search.
type Executor struct {
	layers []Layer
	stats  *Stats
	log    *zap.Logger
}

// NewExecutor creates an executor over layers in priority order. A nil stats
// gets fresh counters.
func NewExecutor(stats *Stats, layers ...Layer) *Executor {
	if stats == nil {
		stats = NewStats()
	}
	return &Executor{
		layers: layers,
		stats:  stats,
		log:    zap.L().With(zap.String("component", "waterfall")),
	}
}

// Stats returns the executor's counters.
func (e *Executor) Stats() *Stats { return e.stats }

// Run attempts each layer until one succeeds. It returns nil when every layer
// misses. Exactly one counter is incremented per call. The in-memory layers
// always run; a done ctx only skips estimation.
func (e *Executor) Run(ctx context.Context, q Query) *Outcome {
	for _, l := range e.layers {
		if l.Kind() == model.LayerEstimation && ctx.Err() != nil {
			e.log.Debug("waterfall: context done, skipping estimation", zap.Error(ctx.Err()))
			break
		}
		out, ok := e.attempt(ctx, l, q)
		if !ok || out == nil {
			e.log.Debug("waterfall: layer missed",
				zap.String("layer", l.Kind().String()),
				zap.String("activity", q.Activity),
			)
			continue
		}
		out.Layer = l.Kind()
		e.stats.Record(out.Layer)
		e.log.Debug("waterfall: layer hit",
			zap.String("layer", out.Layer.String()),
			zap.String("activity", q.Activity),
			zap.Float64("factor", out.Factor),
			zap.Float64("confidence", out.Confidence),
		)
		return out
	}
	e.stats.Record(model.LayerFailure)
	return nil
}

// attempt isolates a layer so a panic counts as a miss.
func (e *Executor) attempt(ctx context.Context, l Layer, q Query) (out *Outcome, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("waterfall: layer panicked",
				zap.String("layer", l.Kind().String()),
				zap.String("panic", fmt.Sprint(r)),
			)
			out, ok = nil, false
		}
	}()
	return l.Attempt(ctx, q)
}
