package builtin

import (
	"mercator-hq/guardrails/pkg/guardrails/pipeline"
)

// Built-in guardrail names.
const (
	NameMaxLength    = "max-length"
	NameMaxTokens    = "max-tokens"
	NameBlockedTerms = "blocked-terms"
	NameRegex        = "regex"
	NamePII          = "pii"
	NameRateLimit    = "rate-limit"
	NameAllowedTools = "allowed-tools"
	NameTokenBudget  = "token-budget"
)

var factories = map[string]pipeline.Factory{
	NameMaxLength:    maxLengthFactory,
	NameMaxTokens:    maxTokensFactory,
	NameBlockedTerms: blockedTermsFactory,
	NameRegex:        regexFactory,
	NamePII:          piiFactory,
	NameRateLimit:    rateLimitFactory,
	NameAllowedTools: allowedToolsFactory,
	NameTokenBudget:  tokenBudgetFactory,
}

// Register adds every built-in factory to r.
func Register(r *pipeline.Registry) error {
	for _, name := range []string{NameMaxLength, NameMaxTokens, NameBlockedTerms, NameRegex, NamePII, NameRateLimit, NameTokenBudget, NameAllowedTools} {
		if err := r.Register(name, factories[name]); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in factories.
func NewRegistry() *pipeline.Registry {
	r := pipeline.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
