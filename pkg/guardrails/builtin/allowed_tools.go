package builtin

import (
	"context"
	"errors"
	"slices"
	"strings"

	"mercator-hq/guardrails/pkg/guardrails"
)

// AllowedToolsConfig configures the allowed-tools guardrail.
type AllowedToolsConfig struct {
	Common `yaml:",inline"`

	// Allow lists the tool names the model may call.
	Allow []string `yaml:"allow"`
}

// NewAllowedTools blocks responses that call a tool outside Allow.
func NewAllowedTools(cfg AllowedToolsConfig) (*guardrails.Guardrail, error) {
	if len(cfg.Allow) == 0 {
		return nil, errors.New("allow must not be empty")
	}
	severity, err := cfg.severity(guardrails.SeverityHigh)
	if err != nil {
		return nil, err
	}

	check := func(ctx context.Context, in guardrails.Context) (guardrails.Verdict, error) {
		var denied []string
		for _, call := range in.ToolCalls {
			name := call.Function.Name
			if !slices.Contains(cfg.Allow, name) && !slices.Contains(denied, name) {
				denied = append(denied, name)
			}
		}
		if len(denied) == 0 {
			return guardrails.Pass(), nil
		}
		return guardrails.Trip(severity, cfg.message("response calls tools that are not allowed: "+strings.Join(denied, ", "))).
			WithMetadata("denied", denied).
			WithMetadata(guardrails.MetadataReason, "tool not allowed").
			WithSuggestion("Only use these tools: " + strings.Join(cfg.Allow, ", ")), nil
	}

	return guardrails.New(NameAllowedTools, check, cfg.options("Restricts which tools a response may call")...)
}

func allowedToolsFactory(raw map[string]any) (*guardrails.Guardrail, error) {
	var cfg AllowedToolsConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	return NewAllowedTools(cfg)
}
