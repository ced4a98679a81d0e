package builtin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"mercator-hq/guardrails/pkg/guardrails"

	"gopkg.in/yaml.v3"
)

// Common holds the settings every built-in guardrail accepts alongside its
// own fields.
type Common struct {
	// Severity of a trip. Default differs per guardrail.
	Severity string `yaml:"severity"`

	// Message overrides the verdict message on a trip.
	Message string `yaml:"message"`

	// Timeout bounds each execution.
	Timeout time.Duration `yaml:"timeout"`

	// FailOpen lets execution errors pass.
	FailOpen bool `yaml:"fail_open"`

	Priority int      `yaml:"priority"`
	Tags     []string `yaml:"tags"`
}

func (c Common) options(description string) []guardrails.Option {
	opts := []guardrails.Option{
		guardrails.WithDescription(description),
		guardrails.WithPriority(c.Priority),
		guardrails.WithTimeout(c.Timeout),
	}
	if len(c.Tags) > 0 {
		opts = append(opts, guardrails.WithTags(c.Tags...))
	}
	if c.FailOpen {
		opts = append(opts, guardrails.WithFailOpen())
	}
	return opts
}

func (c Common) severity(def guardrails.Severity) (guardrails.Severity, error) {
	if c.Severity == "" {
		return def, nil
	}
	return guardrails.ParseSeverity(c.Severity)
}

func (c Common) message(def string) string {
	if c.Message != "" {
		return c.Message
	}
	return def
}

// decode converts an opaque factory config into out. Unknown keys are an
// error so typos surface when the pipeline loads.
func decode(cfg map[string]any, out any) error {
	if len(cfg) == 0 {
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
