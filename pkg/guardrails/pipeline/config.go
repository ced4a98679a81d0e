package pipeline

import (
	"mercator-hq/guardrails/pkg/guardrails"
)

// SupportedVersion is the only accepted value of every version field.
const SupportedVersion = 1

// Config is a declarative pipeline: an optional guardrail list per stage.
//
//	{
//	  "version": 1,
//	  "input": {
//	    "version": 1,
//	    "guardrails": [{"name": "blocked-terms", "config": {"terms": ["secret"]}}]
//	  }
//	}
type Config struct {
	Version   int          `json:"version" yaml:"version"`
	PreFlight *StageConfig `json:"pre_flight,omitempty" yaml:"pre_flight,omitempty"`
	Input     *StageConfig `json:"input,omitempty" yaml:"input,omitempty"`
	Output    *StageConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// StageConfig lists the guardrails of one stage.
type StageConfig struct {
	Version    int     `json:"version" yaml:"version"`
	Guardrails []Entry `json:"guardrails" yaml:"guardrails"`
}

// Entry references a registered guardrail. Config is handed to the factory
// without interpretation. ID, when set, replaces Name in verdicts so one
// guardrail can appear several times in a stage with different configs.
type Entry struct {
	Name   string         `json:"name" yaml:"name"`
	ID     string         `json:"id,omitempty" yaml:"id,omitempty"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// UnitName is the name the built guardrail runs under.
func (e Entry) UnitName() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

// Stages lists the stages in execution order.
var Stages = []guardrails.Stage{
	guardrails.StagePreFlight,
	guardrails.StageInput,
	guardrails.StageOutput,
}

// Stage returns the config of stage s, or nil when it is absent.
func (c *Config) Stage(s guardrails.Stage) *StageConfig {
	if c == nil {
		return nil
	}
	switch s {
	case guardrails.StagePreFlight:
		return c.PreFlight
	case guardrails.StageInput:
		return c.Input
	case guardrails.StageOutput:
		return c.Output
	}
	return nil
}

// Names returns the names the stage's guardrails run under, in order.
func (s *StageConfig) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Guardrails))
	for _, e := range s.Guardrails {
		names = append(names, e.UnitName())
	}
	return names
}

func (c *Config) setStage(s guardrails.Stage, sc *StageConfig) {
	switch s {
	case guardrails.StagePreFlight:
		c.PreFlight = sc
	case guardrails.StageInput:
		c.Input = sc
	case guardrails.StageOutput:
		c.Output = sc
	}
}
