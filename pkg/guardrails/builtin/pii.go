package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/processing/content"
)

// PIIConfig configures the pii guardrail.
type PIIConfig struct {
	Common `yaml:",inline"`

	// Types limits detection to these PII types. Default: all.
	Types []string `yaml:"types"`

	// Redact adds the text with every match replaced by its type
	// placeholder as "redacted" metadata.
	Redact bool `yaml:"redact"`
}

// NewPII blocks text containing personal data. Only the detected types and
// counts are reported, plus the redacted text when configured; the matched
// values never enter the verdict.
func NewPII(cfg PIIConfig) (*guardrails.Guardrail, error) {
	detector, err := content.NewDetector(cfg.Types...)
	if err != nil {
		return nil, err
	}
	severity, err := cfg.severity(guardrails.SeverityHigh)
	if err != nil {
		return nil, err
	}

	check := func(ctx context.Context, in guardrails.Context) (guardrails.Verdict, error) {
		counts := detector.Counts(in.Text)
		if len(counts) == 0 {
			return guardrails.Pass(), nil
		}

		types := make([]string, 0, len(counts))
		total := 0
		for t, n := range counts {
			types = append(types, t)
			total += n
		}
		sort.Strings(types)

		v := guardrails.Trip(severity, cfg.message(fmt.Sprintf("text contains personal data: %s", strings.Join(types, ", ")))).
			WithMetadata("types", types).
			WithMetadata("count", total).
			WithMetadata(guardrails.MetadataReason, "pii detected").
			WithSuggestion("Remove personal data such as " + strings.Join(types, ", ") + ".")
		if cfg.Redact {
			v = v.WithMetadata("redacted", detector.Redact(in.Text))
		}
		return v, nil
	}

	return guardrails.New(NamePII, check, cfg.options("Blocks text containing personal data")...)
}

func piiFactory(raw map[string]any) (*guardrails.Guardrail, error) {
	var cfg PIIConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	return NewPII(cfg)
}
