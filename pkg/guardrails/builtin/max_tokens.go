package builtin

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/processing/tokens"
)

// MaxTokensConfig configures the max-tokens guardrail.
type MaxTokensConfig struct {
	Common `yaml:",inline"`

	// MaxTokens is the largest accepted token count.
	MaxTokens int `yaml:"max_tokens"`

	// CharsPerToken overrides estimation ratios per model prefix.
	CharsPerToken map[string]float64 `yaml:"chars_per_token"`
}

// NewMaxTokens blocks prompts or completions above a token budget.
//
// On pre-flight and input stages with a request the whole conversation is
// estimated. On the output stage the provider's reported completion tokens
// are used when present. Anything else estimates Context.Text.
func NewMaxTokens(cfg MaxTokensConfig) (*guardrails.Guardrail, error) {
	if cfg.MaxTokens <= 0 {
		return nil, errors.New("max_tokens must be positive")
	}
	severity, err := cfg.severity(guardrails.SeverityMedium)
	if err != nil {
		return nil, err
	}
	estimator := tokens.NewSimpleEstimator(cfg.CharsPerToken)

	check := func(ctx context.Context, in guardrails.Context) (guardrails.Verdict, error) {
		n, source := countTokens(estimator, in)
		if n <= cfg.MaxTokens {
			return guardrails.Pass().WithMetadata("tokens", n), nil
		}
		return guardrails.Trip(severity, cfg.message(fmt.Sprintf("%d tokens, limit is %d", n, cfg.MaxTokens))).
			WithMetadata("tokens", n).
			WithMetadata("limit", cfg.MaxTokens).
			WithMetadata("source", source).
			WithMetadata(guardrails.MetadataReason, "too many tokens").
			WithSuggestion(fmt.Sprintf("Keep it under %d tokens.", cfg.MaxTokens)), nil
	}

	return guardrails.New(NameMaxTokens, check, cfg.options("Blocks prompts or completions above a token budget")...)
}

// countTokens returns the token count for in and whether it was "reported"
// by the provider or "estimated".
func countTokens(e *tokens.SimpleEstimator, in guardrails.Context) (int, string) {
	model := ""
	if in.Request != nil {
		model = in.Request.Model
	}

	switch {
	case in.Stage == guardrails.StageOutput && in.Response != nil && in.Response.Usage.CompletionTokens > 0:
		return in.Response.Usage.CompletionTokens, "reported"
	case in.Stage != guardrails.StageOutput && in.Request != nil && len(in.Request.Messages) > 0:
		return e.EstimateMessages(in.Request.Messages, model), "estimated"
	}
	return e.EstimateText(in.Text, model), "estimated"
}

func maxTokensFactory(raw map[string]any) (*guardrails.Guardrail, error) {
	var cfg MaxTokensConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	return NewMaxTokens(cfg)
}
