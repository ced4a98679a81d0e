package builtin

import (
	"context"
	"fmt"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/limits/ratelimit"
	"mercator-hq/guardrails/pkg/processing/tokens"
)

// Rate limit key sources.
const (
	KeyUser   = "user"
	KeyModel  = "model"
	KeyGlobal = "global"
)

// RateLimitConfig configures the rate-limit guardrail.
type RateLimitConfig struct {
	Common `yaml:",inline"`

	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
	TokensPerMinute   int `yaml:"tokens_per_minute"`

	// Key selects what requests are counted against: "user" (default),
	// "model" or "global". Requests without a user fall back to "global".
	Key string `yaml:"key"`
}

// NewRateLimit limits requests and tokens per key. On pre-flight and input
// stages it consumes one request and checks the token budget; on the output
// stage it records the response's token usage and never trips. Responses
// without reported usage are charged an estimate of the prompt and the
// completion text.
//
// The limiter lives as long as the guardrail, so counters reset when a
// pipeline is reloaded.
func NewRateLimit(cfg RateLimitConfig, clock ratelimit.Clock) (*guardrails.Guardrail, error) {
	if cfg.RequestsPerMinute == 0 && cfg.TokensPerMinute == 0 {
		return nil, fmt.Errorf("requests_per_minute or tokens_per_minute is required")
	}
	switch cfg.Key {
	case "":
		cfg.Key = KeyUser
	case KeyUser, KeyModel, KeyGlobal:
	default:
		return nil, fmt.Errorf("key must be %q, %q or %q, got %q", KeyUser, KeyModel, KeyGlobal, cfg.Key)
	}
	severity, err := cfg.severity(guardrails.SeverityMedium)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.Burst,
		TokensPerMinute:   cfg.TokensPerMinute,
	}, clock)
	if err != nil {
		return nil, err
	}

	estimator := tokens.NewSimpleEstimator(nil)

	check := func(ctx context.Context, in guardrails.Context) (guardrails.Verdict, error) {
		key := limitKey(cfg.Key, in)

		if in.Stage == guardrails.StageOutput {
			limiter.RecordTokens(key, usedTokens(estimator, in))
			return guardrails.Pass(), nil
		}

		res := limiter.CheckRequest(key)
		if res.Allowed {
			res = limiter.CheckTokens(key, 0)
		}
		if res.Allowed {
			return guardrails.Pass().WithMetadata("remaining", res.Remaining), nil
		}
		return guardrails.Trip(severity, cfg.message(res.Reason)).
			WithMetadata("key", key).
			WithMetadata("limit", res.Limit).
			WithMetadata("retry_after_ms", res.RetryAfter.Milliseconds()).
			WithMetadata(guardrails.MetadataReason, "rate limited"), nil
	}

	return guardrails.New(NameRateLimit, check, cfg.options("Limits requests and tokens per user, model or globally")...)
}

// usedTokens is the reported total, or an estimate when the provider
// reported none.
func usedTokens(e *tokens.SimpleEstimator, in guardrails.Context) int {
	if in.Response != nil && in.Response.Usage.TotalTokens > 0 {
		return in.Response.Usage.TotalTokens
	}
	n := e.EstimateRequest(in.Request).PromptTokens
	model := ""
	if in.Request != nil {
		model = in.Request.Model
	}
	return n + e.EstimateText(in.Text, model)
}

func limitKey(source string, in guardrails.Context) string {
	switch source {
	case KeyUser:
		if in.Request != nil && in.Request.User != "" {
			return "user:" + in.Request.User
		}
		if u, ok := in.Metadata[KeyUser].(string); ok && u != "" {
			return "user:" + u
		}
	case KeyModel:
		if in.Request != nil && in.Request.Model != "" {
			return "model:" + in.Request.Model
		}
	}
	return KeyGlobal
}

func rateLimitFactory(raw map[string]any) (*guardrails.Guardrail, error) {
	var cfg RateLimitConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	return NewRateLimit(cfg, nil)
}
