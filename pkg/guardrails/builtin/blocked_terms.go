package builtin

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"mercator-hq/guardrails/pkg/guardrails"
)

// BlockedTermsConfig configures the blocked-terms guardrail.
type BlockedTermsConfig struct {
	Common `yaml:",inline"`

	Terms []string `yaml:"terms"`

	// CaseSensitive disables case folding.
	CaseSensitive bool `yaml:"case_sensitive"`

	// WholeWord only matches terms at word boundaries.
	WholeWord bool `yaml:"whole_word"`
}

// NewBlockedTerms blocks text containing any of the configured terms. All
// matching terms are reported in metadata["matched"].
func NewBlockedTerms(cfg BlockedTermsConfig) (*guardrails.Guardrail, error) {
	if len(cfg.Terms) == 0 {
		return nil, errors.New("terms must not be empty")
	}
	severity, err := cfg.severity(guardrails.SeverityHigh)
	if err != nil {
		return nil, err
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Terms))
	for _, term := range cfg.Terms {
		if strings.TrimSpace(term) == "" {
			return nil, errors.New("terms must not contain blanks")
		}
		expr := regexp.QuoteMeta(term)
		if cfg.WholeWord {
			expr = `\b` + expr + `\b`
		}
		if !cfg.CaseSensitive {
			expr = `(?i)` + expr
		}
		patterns = append(patterns, regexp.MustCompile(expr))
	}

	check := func(ctx context.Context, in guardrails.Context) (guardrails.Verdict, error) {
		var matched []string
		for i, re := range patterns {
			if re.MatchString(in.Text) {
				matched = append(matched, cfg.Terms[i])
			}
		}
		if len(matched) == 0 {
			return guardrails.Pass(), nil
		}
		return guardrails.Trip(severity, cfg.message("text contains blocked terms: "+strings.Join(matched, ", "))).
			WithMetadata("matched", matched).
			WithMetadata(guardrails.MetadataReason, "blocked terms present").
			WithSuggestion("Remove or rephrase: " + strings.Join(matched, ", ")), nil
	}

	return guardrails.New(NameBlockedTerms, check, cfg.options("Blocks text containing listed terms")...)
}

func blockedTermsFactory(raw map[string]any) (*guardrails.Guardrail, error) {
	var cfg BlockedTermsConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	return NewBlockedTerms(cfg)
}
