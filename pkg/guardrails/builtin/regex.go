package builtin

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"mercator-hq/guardrails/pkg/guardrails"
)

// Regex modes.
const (
	// RegexDeny trips when the pattern matches.
	RegexDeny = "deny"

	// RegexRequire trips when the pattern does not match.
	RegexRequire = "require"
)

// RegexConfig configures the regex guardrail.
type RegexConfig struct {
	Common `yaml:",inline"`

	Pattern string `yaml:"pattern"`

	// Mode is "deny" (default) or "require".
	Mode string `yaml:"mode"`
}

// NewRegex matches text against Pattern. Matched text is never copied into
// the verdict; only the match count is reported.
func NewRegex(cfg RegexConfig) (*guardrails.Guardrail, error) {
	if cfg.Pattern == "" {
		return nil, errors.New("pattern is required")
	}
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = RegexDeny
	}
	if cfg.Mode != RegexDeny && cfg.Mode != RegexRequire {
		return nil, fmt.Errorf("mode must be %q or %q, got %q", RegexDeny, RegexRequire, cfg.Mode)
	}
	severity, err := cfg.severity(guardrails.SeverityMedium)
	if err != nil {
		return nil, err
	}

	check := func(ctx context.Context, in guardrails.Context) (guardrails.Verdict, error) {
		matches := len(re.FindAllStringIndex(in.Text, -1))
		switch {
		case cfg.Mode == RegexDeny && matches > 0:
			return guardrails.Trip(severity, cfg.message(fmt.Sprintf("text matches a forbidden pattern %d times", matches))).
				WithMetadata("matches", matches).
				WithMetadata(guardrails.MetadataReason, "forbidden pattern present"), nil
		case cfg.Mode == RegexRequire && matches == 0:
			return guardrails.Trip(severity, cfg.message("text does not match the required pattern")).
				WithMetadata(guardrails.MetadataReason, "required pattern missing").
				WithSuggestion("Follow the required format."), nil
		}
		return guardrails.Pass(), nil
	}

	return guardrails.New(NameRegex, check, cfg.options("Matches text against a regular expression")...)
}

func regexFactory(raw map[string]any) (*guardrails.Guardrail, error) {
	var cfg RegexConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	return NewRegex(cfg)
}
