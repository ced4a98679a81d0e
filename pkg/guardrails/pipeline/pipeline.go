package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/engine"
)

// StageResult is the outcome of running one or more stages.
type StageResult struct {
	// Blocked is true when any guardrail triggered.
	Blocked bool

	// Stage is the last stage that ran.
	Stage guardrails.Stage

	Summary *guardrails.Summary
}

// Pipeline is a resolved Config: the guardrails of every stage, built once
// and reused for every run.
type Pipeline struct {
	config *Config
	stages map[guardrails.Stage][]*guardrails.Guardrail
	engine *engine.Engine
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEngine sets the engine used by RunStage. Default: engine.Default().
func WithEngine(e *engine.Engine) Option {
	return func(p *Pipeline) { p.engine = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New validates cfg against registry and resolves every stage.
func New(cfg *Config, registry *Registry, opts ...Option) (*Pipeline, error) {
	cfg, err := Load(registry, cfg)
	if err != nil {
		return nil, err
	}
	return build(cfg, registry, opts)
}

// FromFile loads path with LoadFile and resolves it.
func FromFile(path string, registry *Registry, opts ...Option) (*Pipeline, error) {
	cfg, err := LoadFile(registry, path)
	if err != nil {
		return nil, err
	}
	return build(cfg, registry, opts)
}

func build(cfg *Config, registry *Registry, opts []Option) (*Pipeline, error) {
	p := &Pipeline{
		config: cfg,
		stages: make(map[guardrails.Stage][]*guardrails.Guardrail, len(Stages)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.engine == nil {
		p.engine = engine.Default()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "guardrails.pipeline")

	cfgErr := guardrails.NewConfigurationError()
	cache := unitCache{}
	for _, stage := range Stages {
		sc := cfg.Stage(stage)
		if sc == nil {
			continue
		}
		p.stages[stage] = resolveInto(sc, string(stage)+".", registry, cache, cfgErr)
	}
	if cfgErr.HasProblems() {
		return nil, cfgErr
	}

	p.logger.Debug("pipeline resolved",
		"pre_flight", len(p.stages[guardrails.StagePreFlight]),
		"input", len(p.stages[guardrails.StageInput]),
		"output", len(p.stages[guardrails.StageOutput]),
	)
	return p, nil
}

// Config returns the validated configuration.
func (p *Pipeline) Config() *Config {
	return p.config
}

// Guardrails returns the resolved guardrails of stage. The slice is a copy.
func (p *Pipeline) Guardrails(stage guardrails.Stage) []*guardrails.Guardrail {
	if p == nil {
		return nil
	}
	return slices.Clone(p.stages[stage])
}

// RunStage runs every guardrail of stage against in. A stage with no
// guardrails passes with an empty summary.
func (p *Pipeline) RunStage(ctx context.Context, stage guardrails.Stage, in guardrails.Context) (*StageResult, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}

	in.Stage = stage
	units := p.stages[stage]
	if len(units) == 0 {
		return &StageResult{Stage: stage, Summary: guardrails.NewSummary(nil, 0)}, nil
	}

	summary := p.engine.Run(ctx, units, in)
	return &StageResult{
		Blocked: summary.Triggered(),
		Stage:   stage,
		Summary: summary,
	}, nil
}

// CheckPlainText runs the pre_flight and input stages over text. Input is
// skipped when pre_flight blocks; otherwise the verdicts of both stages are
// combined.
func (p *Pipeline) CheckPlainText(ctx context.Context, text string) (*StageResult, error) {
	in := guardrails.Context{Text: text}

	pre, err := p.RunStage(ctx, guardrails.StagePreFlight, in)
	if err != nil {
		return nil, err
	}
	if pre.Blocked {
		return pre, nil
	}

	input, err := p.RunStage(ctx, guardrails.StageInput, in)
	if err != nil {
		return nil, err
	}

	all := append(slices.Clone(pre.Summary.All), input.Summary.All...)
	summary := guardrails.NewSummary(all, pre.Summary.Duration+input.Summary.Duration)
	return &StageResult{
		Blocked: summary.Triggered(),
		Stage:   guardrails.StageInput,
		Summary: summary,
	}, nil
}
