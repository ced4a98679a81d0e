package builtin

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"mercator-hq/guardrails/pkg/guardrails"
)

// MaxLengthConfig configures the max-length guardrail.
type MaxLengthConfig struct {
	Common `yaml:",inline"`

	// MaxChars is the largest accepted text length in characters.
	MaxChars int `yaml:"max_chars"`
}

// NewMaxLength blocks text longer than MaxChars characters.
func NewMaxLength(cfg MaxLengthConfig) (*guardrails.Guardrail, error) {
	if cfg.MaxChars <= 0 {
		return nil, errors.New("max_chars must be positive")
	}
	severity, err := cfg.severity(guardrails.SeverityMedium)
	if err != nil {
		return nil, err
	}

	check := func(ctx context.Context, in guardrails.Context) (guardrails.Verdict, error) {
		n := utf8.RuneCountInString(in.Text)
		if n <= cfg.MaxChars {
			return guardrails.Pass(), nil
		}
		return guardrails.Trip(severity, cfg.message(fmt.Sprintf("text is %d characters, limit is %d", n, cfg.MaxChars))).
			WithMetadata("length", n).
			WithMetadata("limit", cfg.MaxChars).
			WithMetadata(guardrails.MetadataReason, "text too long").
			WithSuggestion(fmt.Sprintf("Keep the text under %d characters.", cfg.MaxChars)), nil
	}

	return guardrails.New(NameMaxLength, check, cfg.options("Blocks text above a character limit")...)
}

func maxLengthFactory(raw map[string]any) (*guardrails.Guardrail, error) {
	var cfg MaxLengthConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	return NewMaxLength(cfg)
}
