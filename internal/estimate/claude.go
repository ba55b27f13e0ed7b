package estimate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/emissions-cli/internal/config"
	"github.com/sells-group/emissions-cli/internal/resilience"
	"github.com/sells-group/emissions-cli/pkg/anthropic"
)

// ClaudeEstimator estimates factors with an Anthropic model.
type ClaudeEstimator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	pricing   map[string]anthropic.ModelPrice
}

// NewClaudeEstimator wires an estimator from configuration. A nil client
// yields an estimator that always reports ErrUnavailable.
func NewClaudeEstimator(client anthropic.Client, cfg *config.Config) *ClaudeEstimator {
	est := cfg.Estimation

	limit := rate.Inf
	if est.RequestsPerSecond > 0 {
		limit = rate.Limit(est.RequestsPerSecond)
	}
	burst := est.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := time.Duration(est.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := est.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	retry := resilience.FromRetryConfig(cfg.Resilience.Retry)
	retry.OnRetry = resilience.RetryLogger("anthropic", "estimate")

	breakerCfg := resilience.FromCircuitConfig(cfg.Resilience.Circuit)
	breakerCfg.ShouldTrip = resilience.IsTransient
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("estimate: circuit state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	pricing := make(map[string]anthropic.ModelPrice, len(anthropic.DefaultPricing)+len(cfg.Pricing.Anthropic))
	for m, p := range anthropic.DefaultPricing {
		pricing[m] = p
	}
	for m, p := range cfg.Pricing.Anthropic {
		pricing[m] = anthropic.ModelPrice{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}

	return &ClaudeEstimator{
		client:    client,
		model:     cfg.Anthropic.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
		limiter:   rate.NewLimiter(limit, burst),
		retry:     retry,
		breaker:   resilience.NewCircuitBreaker(breakerCfg),
		pricing:   pricing,
	}
}

// Estimate sends one request, bounded by the configured timeout. Every
// failure is returned wrapped in ErrUnavailable or ErrInvalidResponse.
func (e *ClaudeEstimator) Estimate(ctx context.Context, req Request) (*Response, error) {
	if e.client == nil {
		return nil, eris.Wrap(ErrUnavailable, "no credential configured")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "rate limiter: %v", err)
	}

	temp := 0.0
	msgReq := anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      anthropic.CachedSystem(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(req)}},
		Temperature: &temp,
	}

	msg, err := resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return e.client.CreateMessage(ctx, msgReq)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "%v", err)
	}

	cost := msg.Usage.CostWith(e.pricing, e.model)
	msg.Usage.LogCost(e.model, "estimate", cost)

	resp, err := parseResponse(msg.Text())
	if err != nil {
		return &Response{CostUSD: cost, Model: msg.Model}, err
	}
	resp.CostUSD = cost
	resp.Model = msg.Model
	return resp, nil
}

// Breaker exposes the circuit breaker state for health reporting.
func (e *ClaudeEstimator) Breaker() resilience.CircuitState {
	return e.breaker.State()
}
