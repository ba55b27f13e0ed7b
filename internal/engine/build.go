package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/config"
	"github.com/sells-group/emissions-cli/internal/estimate"
	"github.com/sells-group/emissions-cli/internal/factors"
	"github.com/sells-group/emissions-cli/internal/waterfall"
	"github.com/sells-group/emissions-cli/pkg/anthropic"
)

// Build loads reference data and rules from cfg and wires the estimator.
func Build(ctx context.Context, cfg *config.Config) (*Engine, error) {
	store, err := factors.Load(ctx, cfg.Factors)
	if err != nil {
		return nil, eris.Wrap(err, "engine: load factors")
	}
	rules, err := waterfall.LoadRules(cfg.Search.RulesPath)
	if err != nil {
		return nil, eris.Wrap(err, "engine: load rules")
	}
	return New(cfg, store, NewEstimator(cfg), rules), nil
}

// NewEstimator returns the Claude-backed estimator, or estimate.Disabled when
// estimation is off or no API key is configured.
func NewEstimator(cfg *config.Config) estimate.Estimator {
	if !cfg.Estimation.Enabled {
		zap.L().Info("engine: estimation disabled by config")
		return estimate.Disabled{}
	}
	if cfg.Anthropic.Key == "" {
		zap.L().Warn("engine: estimation enabled but anthropic.key is not set; layer 3 unavailable")
		return estimate.Disabled{}
	}

	var opts []anthropic.Option
	if cfg.Anthropic.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	return estimate.NewClaudeEstimator(anthropic.NewClient(cfg.Anthropic.Key, opts...), cfg)
}
