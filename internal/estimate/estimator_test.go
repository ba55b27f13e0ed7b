package estimate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emissions-cli/internal/config"
	"github.com/sells-group/emissions-cli/internal/model"
	"github.com/sells-group/emissions-cli/internal/resilience"
	"github.com/sells-group/emissions-cli/pkg/anthropic"
)

type fakeClient struct {
	mu    sync.Mutex
	calls int
	reqs  []anthropic.MessageRequest
	fn    func(call int) (*anthropic.MessageResponse, error)
}

func (f *fakeClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fn(call)
}

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:   "claude-sonnet-4-5-20250929",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 1_000_000, OutputTokens: 0},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Estimation: config.EstimationConfig{Enabled: true, TimeoutSecs: 5, MaxTokens: 512},
		Anthropic:  config.AnthropicConfig{Model: "claude-sonnet-4-5-20250929"},
		Resilience: config.ResilienceConfig{
			Retry:   config.RetryConfig{MaxAttempts: 3, InitialBackoffMs: 1, MaxBackoffMs: 2},
			Circuit: config.CircuitConfig{FailureThreshold: 2, ResetTimeoutSecs: 60},
		},
	}
}

const validReply = "```json\n" + `{
  "estimated_emission_factor": 0.45,
  "unit": "kg CO2e/hour",
  "confidence": 0.6,
  "data_quality": "Estimated - Medium",
  "reasoning": "Based on typical small generator fuel use.",
  "similar_factors": [
    {"activity": "diesel", "factor": 2.68, "unit": "litre", "source": "UK Government"},
    {"activity": "a", "factor": "1.0", "unit": "x"},
    {"activity": "b", "factor": 1, "unit": "x"},
    {"activity": "c", "factor": 1, "unit": "x"},
    {"activity": "d", "factor": 1, "unit": "x"},
    {"activity": "e", "factor": 1, "unit": "x"}
  ],
  "uncertainty_range": {"low": 0.3, "high": 0.6, "percentage": 33},
  "recommended_next_steps": ["Collect supplier fuel records"],
  "compliance_warning": "Estimate only; verify before reporting."
}` + "\n```"

func TestClaudeEstimator_Estimate(t *testing.T) {
	fc := &fakeClient{fn: func(int) (*anthropic.MessageResponse, error) { return reply(validReply), nil }}
	est := NewClaudeEstimator(fc, testConfig())

	resp, err := est.Estimate(context.Background(), Request{
		Activity:        "generator runtime",
		Quantity:        10,
		Unit:            "hour",
		Region:          "India",
		Intent:          model.DefaultIntent(),
		FactorsSearched: 37,
	})
	require.NoError(t, err)

	f, ok := resp.Factor()
	require.True(t, ok)
	assert.InDelta(t, 0.45, f, 1e-9)
	require.NotNil(t, resp.Confidence)
	assert.InDelta(t, 0.6, float64(*resp.Confidence), 1e-9)
	assert.Len(t, resp.SimilarFactors, MaxSimilarFactors)
	assert.InDelta(t, 1.0, float64(resp.SimilarFactors[1].Factor), 1e-9)
	require.NotNil(t, resp.UncertaintyRange)
	assert.InDelta(t, 33, float64(resp.UncertaintyRange.Percentage), 1e-9)
	assert.Equal(t, "Estimate only; verify before reporting.", resp.ComplianceWarning)
	assert.InDelta(t, 3.0, resp.CostUSD, 1e-9)
	assert.NoError(t, resp.Validate(100000))

	require.Len(t, fc.reqs, 1)
	req := fc.reqs[0]
	assert.Equal(t, "claude-sonnet-4-5-20250929", req.Model)
	assert.Equal(t, int64(512), req.MaxTokens)
	require.Len(t, req.System, 1)
	assert.NotNil(t, req.System[0].CacheControl)
	assert.Contains(t, req.Messages[0].Content, "generator runtime")
	assert.Contains(t, req.Messages[0].Content, "37 reference emission factors")
}

func TestClaudeEstimator_NoClient(t *testing.T) {
	est := NewClaudeEstimator(nil, testConfig())
	_, err := est.Estimate(context.Background(), Request{Activity: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClaudeEstimator_RetriesTransient(t *testing.T) {
	fc := &fakeClient{fn: func(call int) (*anthropic.MessageResponse, error) {
		if call == 1 {
			return nil, &anthropic.APIError{StatusCode: 529, Err: errors.New("overloaded")}
		}
		return reply(`{"estimated_emission_factor": 1.5}`), nil
	}}
	est := NewClaudeEstimator(fc, testConfig())

	resp, err := est.Estimate(context.Background(), Request{Activity: "x"})
	require.NoError(t, err)
	f, _ := resp.Factor()
	assert.InDelta(t, 1.5, f, 1e-9)
	assert.Equal(t, 2, fc.calls)
}

func TestClaudeEstimator_PermanentErrorNotRetried(t *testing.T) {
	fc := &fakeClient{fn: func(int) (*anthropic.MessageResponse, error) {
		return nil, &anthropic.APIError{StatusCode: 401, Err: errors.New("invalid x-api-key")}
	}}
	est := NewClaudeEstimator(fc, testConfig())

	_, err := est.Estimate(context.Background(), Request{Activity: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, fc.calls)
}

func TestClaudeEstimator_CircuitOpensAfterFailures(t *testing.T) {
	fc := &fakeClient{fn: func(int) (*anthropic.MessageResponse, error) {
		return nil, resilience.NewTransientError(errors.New("unavailable"), 503)
	}}
	est := NewClaudeEstimator(fc, testConfig())

	for range 2 {
		_, err := est.Estimate(context.Background(), Request{Activity: "x"})
		require.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, resilience.CircuitOpen, est.Breaker())

	calls := fc.calls
	_, err := est.Estimate(context.Background(), Request{Activity: "x"})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, calls, fc.calls)
}

func TestClaudeEstimator_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Resilience.Retry.MaxAttempts = 1
	fc := &fakeClient{fn: func(int) (*anthropic.MessageResponse, error) { return reply("{}"), nil }}
	est := NewClaudeEstimator(fc, cfg)
	est.timeout = time.Nanosecond

	_, err := est.Estimate(context.Background(), Request{Activity: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClaudeEstimator_MalformedReply(t *testing.T) {
	fc := &fakeClient{fn: func(int) (*anthropic.MessageResponse, error) {
		return reply("I cannot estimate this activity."), nil
	}}
	est := NewClaudeEstimator(fc, testConfig())

	resp, err := est.Estimate(context.Background(), Request{Activity: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	require.NotNil(t, resp, "cost of the failed call is still reported")
	assert.InDelta(t, 3.0, resp.CostUSD, 1e-9)
	_, ok := resp.Factor()
	assert.False(t, ok)
}

func TestResponse_Validate(t *testing.T) {
	num := func(v float64) *Number { n := Number(v); return &n }
	tests := []struct {
		name    string
		resp    *Response
		wantErr string
	}{
		{"missing factor", &Response{}, "no estimated_emission_factor"},
		{"negative", &Response{EstimatedEmissionFactor: num(-5)}, "non-positive"},
		{"zero", &Response{EstimatedEmissionFactor: num(0)}, "non-positive"},
		{"too large", &Response{EstimatedEmissionFactor: num(100001)}, "exceeds"},
		{"at ceiling", &Response{EstimatedEmissionFactor: num(100000)}, ""},
		{"ok", &Response{EstimatedEmissionFactor: num(2.5)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resp.Validate(100000)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidResponse)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseResponse(t *testing.T) {
	resp, err := parseResponse(`Here you go: {"estimated_emission_factor": "2.5 kg/litre", "confidence": null} Thanks.`)
	require.NoError(t, err)
	f, ok := resp.Factor()
	require.True(t, ok)
	assert.InDelta(t, 2.5, f, 1e-9)
	assert.Nil(t, resp.Confidence)

	_, err = parseResponse(`{"estimated_emission_factor": "unknown"}`)
	require.ErrorIs(t, err, ErrInvalidResponse)

	_, err = parseResponse("")
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseResponse_LenientOptionalFields(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, resp *Response)
	}{
		{
			name: "word confidence",
			body: `{"estimated_emission_factor": 2.1, "confidence": "medium"}`,
			check: func(t *testing.T, resp *Response) {
				require.NotNil(t, resp.Confidence)
				assert.Zero(t, float64(*resp.Confidence))
			},
		},
		{
			name: "plus-minus percentage",
			body: `{"estimated_emission_factor": 2.1, "uncertainty_range": {"low": "1.8", "high": 2.5, "percentage": "±20%"}}`,
			check: func(t *testing.T, resp *Response) {
				require.NotNil(t, resp.UncertaintyRange)
				assert.InDelta(t, 1.8, float64(resp.UncertaintyRange.Low), 1e-9)
				assert.InDelta(t, 20, float64(resp.UncertaintyRange.Percentage), 1e-9)
			},
		},
		{
			name: "unreadable percentage",
			body: `{"estimated_emission_factor": 2.1, "uncertainty_range": {"low": 1, "high": 3, "percentage": "wide"}}`,
			check: func(t *testing.T, resp *Response) {
				require.NotNil(t, resp.UncertaintyRange)
				assert.Zero(t, float64(resp.UncertaintyRange.Percentage))
			},
		},
		{
			name: "similar factor n/a dropped",
			body: `{"estimated_emission_factor": 2.1, "similar_factors": [
				{"activity": "a", "factor": "n/a", "unit": "kg"},
				{"activity": "b", "factor": 1.2, "unit": "kg"}]}`,
			check: func(t *testing.T, resp *Response) {
				require.Len(t, resp.SimilarFactors, 1)
				assert.Equal(t, "b", resp.SimilarFactors[0].Activity)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := parseResponse(tt.body)
			require.NoError(t, err)
			f, ok := resp.Factor()
			require.True(t, ok)
			assert.InDelta(t, 2.1, f, 1e-9)
			assert.NoError(t, resp.Validate(100000))
			tt.check(t, resp)
		})
	}
}

func TestParseResponse_FactorStaysStrict(t *testing.T) {
	for _, body := range []string{
		`{"estimated_emission_factor": "unknown", "confidence": 0.5}`,
		`{"estimated_emission_factor": {"value": 2}}`,
	} {
		_, err := parseResponse(body)
		require.ErrorIs(t, err, ErrInvalidResponse, body)
		assert.Contains(t, err.Error(), "estimated_emission_factor")
	}

	resp, err := parseResponse(`{"estimated_emission_factor": null}`)
	require.NoError(t, err)
	assert.ErrorIs(t, resp.Validate(100000), ErrInvalidResponse)
}

func TestCleanJSON(t *testing.T) {
	tests := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`prefix {"a":{"b":2}} suffix`, `{"a":{"b":2}}`},
		{"no json here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanJSON(tt.in))
	}
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Estimate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Request{
		Activity:        "steel",
		Quantity:        1000,
		Unit:            "kg",
		Region:          "India",
		Description:     "hot rolled coil",
		Intent:          model.Intent{Type: model.IntentProduction, Scope: 3, Category: "purchased_goods", Subcategory: "steel"},
		FactorsSearched: 12,
	})
	assert.Contains(t, p, "Activity: steel")
	assert.Contains(t, p, "Quantity: 1000 kg")
	assert.Contains(t, p, "Region: India")
	assert.Contains(t, p, "subcategory=steel")
	assert.Contains(t, p, "Description: hot rolled coil")
	assert.NotContains(t, p, "Context:")
	assert.True(t, strings.HasSuffix(p, "kg CO2e per kg."))
}
