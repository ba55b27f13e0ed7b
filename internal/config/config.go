package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Factors    FactorsConfig    `yaml:"factors" mapstructure:"factors"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Estimation EstimationConfig `yaml:"estimation" mapstructure:"estimation"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// FactorsConfig selects where the reference datasets are loaded from.
type FactorsConfig struct {
	// Source is one of embedded, file, postgres, sqlite.
	Source            string `yaml:"source" mapstructure:"source"`
	RegionalPath      string `yaml:"regional_path" mapstructure:"regional_path"`
	InternationalPath string `yaml:"international_path" mapstructure:"international_path"`
	SecondaryPath     string `yaml:"secondary_path" mapstructure:"secondary_path"`
	SheetName         string `yaml:"sheet_name" mapstructure:"sheet_name"`
	HeaderRow         int    `yaml:"header_row" mapstructure:"header_row"`
	DatabaseURL       string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath        string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Table             string `yaml:"table" mapstructure:"table"`
	DefaultRegion     string `yaml:"default_region" mapstructure:"default_region"`
}

// SearchConfig tunes the matching layers.
type SearchConfig struct {
	TextThreshold   float64 `yaml:"text_threshold" mapstructure:"text_threshold"`
	UnitThreshold   float64 `yaml:"unit_threshold" mapstructure:"unit_threshold"`
	MinRelevance    float64 `yaml:"min_relevance" mapstructure:"min_relevance"`
	MaxFactor       float64 `yaml:"max_factor" mapstructure:"max_factor"`
	MaxAlternatives int     `yaml:"max_alternatives" mapstructure:"max_alternatives"`
	RulesPath       string  `yaml:"rules_path" mapstructure:"rules_path"`
}

// EstimationConfig configures the model-backed fallback layer.
type EstimationConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxFactor         float64 `yaml:"max_factor" mapstructure:"max_factor"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ResilienceConfig configures retry and circuit breaking around the
// estimation service.
type ResilienceConfig struct {
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig holds retry backoff settings.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig holds circuit breaker settings.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MonitoringConfig configures periodic stats checks and alerting.
type MonitoringConfig struct {
	Enabled                  bool    `yaml:"enabled" mapstructure:"enabled"`
	IntervalSecs             int     `yaml:"interval_secs" mapstructure:"interval_secs"`
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinSearches              int64   `yaml:"min_searches" mapstructure:"min_searches"`
	FailureRateThreshold     float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	EstimationShareThreshold float64 `yaml:"estimation_share_threshold" mapstructure:"estimation_share_threshold"`
	SpendThresholdUSD        float64 `yaml:"spend_threshold_usd" mapstructure:"spend_threshold_usd"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EMISSIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one, even if empty, so AutomaticEnv sees it
	// during Unmarshal.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.concurrency", 8)
	v.SetDefault("factors.source", "embedded")
	v.SetDefault("factors.table", "emission_factors")
	v.SetDefault("factors.default_region", "India")
	v.SetDefault("factors.regional_path", "")
	v.SetDefault("factors.international_path", "")
	v.SetDefault("factors.secondary_path", "")
	v.SetDefault("factors.sheet_name", "")
	v.SetDefault("factors.header_row", 0)
	v.SetDefault("factors.database_url", "")
	v.SetDefault("factors.sqlite_path", "")
	v.SetDefault("search.text_threshold", 75)
	v.SetDefault("search.unit_threshold", 50)
	v.SetDefault("search.min_relevance", 70)
	v.SetDefault("search.max_factor", 10000)
	v.SetDefault("search.max_alternatives", 3)
	v.SetDefault("search.rules_path", "")
	v.SetDefault("estimation.enabled", true)
	v.SetDefault("estimation.timeout_secs", 30)
	v.SetDefault("estimation.max_tokens", 2048)
	v.SetDefault("estimation.max_factor", 100000)
	v.SetDefault("estimation.requests_per_second", 2)
	v.SetDefault("estimation.burst", 4)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("resilience.retry.max_attempts", 3)
	v.SetDefault("resilience.retry.initial_backoff_ms", 500)
	v.SetDefault("resilience.retry.max_backoff_ms", 5000)
	v.SetDefault("resilience.retry.multiplier", 2.0)
	v.SetDefault("resilience.retry.jitter_fraction", 0.2)
	v.SetDefault("resilience.circuit.failure_threshold", 5)
	v.SetDefault("resilience.circuit.reset_timeout_secs", 60)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.interval_secs", 300)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.min_searches", 5)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.estimation_share_threshold", 0.5)
	v.SetDefault("monitoring.spend_threshold_usd", 5.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Factor ceilings. Configured limits above these would let implausible
// factors through the sanity checks.
const (
	maxSearchFactor     = 10000
	maxEstimationFactor = 100000
)

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	switch c.Factors.Source {
	case "embedded":
	case "file":
		if c.Factors.RegionalPath == "" && c.Factors.InternationalPath == "" && c.Factors.SecondaryPath == "" {
			return eris.New("config: factors.source=file needs at least one dataset path")
		}
	case "postgres":
		if c.Factors.DatabaseURL == "" {
			return eris.New("config: factors.source=postgres needs factors.database_url")
		}
	case "sqlite":
		if c.Factors.SQLitePath == "" {
			return eris.New("config: factors.source=sqlite needs factors.sqlite_path")
		}
	default:
		return eris.Errorf("config: unknown factors.source %q", c.Factors.Source)
	}
	if c.Search.MinRelevance < 0 || c.Search.MinRelevance > 100 {
		return eris.Errorf("config: search.min_relevance %v outside 0..100", c.Search.MinRelevance)
	}
	if c.Search.MaxFactor > maxSearchFactor {
		return eris.Errorf("config: search.max_factor %v above %d", c.Search.MaxFactor, maxSearchFactor)
	}
	if c.Estimation.MaxFactor > maxEstimationFactor {
		return eris.Errorf("config: estimation.max_factor %v above %d", c.Estimation.MaxFactor, maxEstimationFactor)
	}
	if c.Estimation.Enabled && c.Estimation.TimeoutSecs <= 0 {
		return eris.New("config: estimation.timeout_secs must be positive")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
