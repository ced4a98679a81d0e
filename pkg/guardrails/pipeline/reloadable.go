package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"mercator-hq/guardrails/pkg/guardrails"
)

// ErrNoPipeline is returned by a Reloadable that was never given a pipeline.
var ErrNoPipeline = errors.New("no pipeline loaded")

// Reloadable holds the current Pipeline and swaps it atomically. Runs that
// already picked up the previous pipeline finish with it.
type Reloadable struct {
	current atomic.Pointer[Pipeline]
	version atomic.Uint64
}

// NewReloadable creates a holder serving p. p may be nil.
func NewReloadable(p *Pipeline) *Reloadable {
	r := &Reloadable{}
	if p != nil {
		r.Swap(p)
	}
	return r
}

// Current returns the pipeline in use, or nil.
func (r *Reloadable) Current() *Pipeline {
	return r.current.Load()
}

// Swap installs p and returns the previous pipeline.
func (r *Reloadable) Swap(p *Pipeline) *Pipeline {
	old := r.current.Swap(p)
	r.version.Add(1)
	return old
}

// Version counts swaps.
func (r *Reloadable) Version() uint64 {
	return r.version.Load()
}

// Guardrails returns the guardrails of stage in the current pipeline.
func (r *Reloadable) Guardrails(stage guardrails.Stage) []*guardrails.Guardrail {
	return r.Current().Guardrails(stage)
}

// RunStage runs stage on the current pipeline.
func (r *Reloadable) RunStage(ctx context.Context, stage guardrails.Stage, in guardrails.Context) (*StageResult, error) {
	p := r.Current()
	if p == nil {
		return nil, ErrNoPipeline
	}
	return p.RunStage(ctx, stage, in)
}

// CheckPlainText runs CheckPlainText on the current pipeline.
func (r *Reloadable) CheckPlainText(ctx context.Context, text string) (*StageResult, error) {
	p := r.Current()
	if p == nil {
		return nil, ErrNoPipeline
	}
	return p.CheckPlainText(ctx, text)
}
