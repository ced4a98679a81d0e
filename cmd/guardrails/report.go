package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"mercator-hq/guardrails/pkg/evidence/recorder"
	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/pipeline"
)

// inputPreview bounds the echoed input in reports.
const inputPreview = 60

// stageRunner is satisfied by *pipeline.Pipeline and *pipeline.Reloadable.
type stageRunner interface {
	RunStage(ctx context.Context, stage guardrails.Stage, in guardrails.Context) (*pipeline.StageResult, error)
	CheckPlainText(ctx context.Context, text string) (*pipeline.StageResult, error)
}

// evaluate checks text at stage. The input stage runs pre_flight first and
// skips input when pre_flight blocks.
func evaluate(ctx context.Context, src stageRunner, stage guardrails.Stage, text string) (*pipeline.StageResult, error) {
	switch stage {
	case guardrails.StageInput:
		return src.CheckPlainText(ctx, text)
	case guardrails.StagePreFlight, guardrails.StageOutput:
		return src.RunStage(ctx, stage, guardrails.Context{Text: text})
	}
	return nil, fmt.Errorf("unknown stage %q (want pre_flight, input or output)", stage)
}

type verdictView struct {
	Guardrail  string  `json:"guardrail"`
	Triggered  bool    `json:"triggered"`
	Severity   string  `json:"severity,omitempty"`
	Message    string  `json:"message,omitempty"`
	Suggestion string  `json:"suggestion,omitempty"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

type checkResult struct {
	Input      string        `json:"input,omitempty"`
	Stage      string        `json:"stage"`
	Blocked    bool          `json:"blocked"`
	Severity   string        `json:"severity,omitempty"`
	Guardrails []verdictView `json:"guardrails"`
}

func newCheckResult(input string, res *pipeline.StageResult) checkResult {
	out := checkResult{
		Input:      recorder.TruncateString(input, inputPreview),
		Stage:      string(res.Stage),
		Blocked:    res.Blocked,
		Severity:   string(res.Summary.MaxSeverity()),
		Guardrails: make([]verdictView, 0, len(res.Summary.All)),
	}
	for _, v := range res.Summary.All {
		view := verdictView{
			Guardrail:  v.Guardrail,
			Triggered:  v.TripwireTriggered,
			Message:    v.Message,
			Suggestion: v.Suggestion,
			DurationMs: float64(v.ExecutionTime.Microseconds()) / 1000,
		}
		if v.TripwireTriggered {
			view.Severity = string(v.Severity)
		}
		if v.Err != nil {
			view.Error = v.Err.Error()
		}
		out.Guardrails = append(out.Guardrails, view)
	}
	return out
}

// checkReport is the output of the check command.
type checkReport struct {
	Results []checkResult `json:"results"`
	Checked int           `json:"checked"`
	Blocked int           `json:"blocked"`
}

func (r *checkReport) add(res checkResult) {
	r.Results = append(r.Results, res)
	r.Checked++
	if res.Blocked {
		r.Blocked++
	}
}

// RenderText writes one block per result and a summary line for batches.
func (r *checkReport) RenderText(w io.Writer) error {
	for _, res := range r.Results {
		if res.Input != "" && r.Checked > 1 {
			fmt.Fprintf(w, "%q\n", res.Input)
		}
		if res.Blocked {
			fmt.Fprintf(w, "BLOCKED (%s) at %s\n", res.Severity, res.Stage)
		} else {
			fmt.Fprintf(w, "PASSED at %s\n", res.Stage)
		}
		for _, v := range res.Guardrails {
			switch {
			case v.Triggered:
				fmt.Fprintf(w, "  ✗ %s [%s] %s\n", v.Guardrail, v.Severity, v.Message)
				if v.Suggestion != "" {
					fmt.Fprintf(w, "      suggestion: %s\n", v.Suggestion)
				}
			case v.Error != "":
				fmt.Fprintf(w, "  ! %s failed open: %s\n", v.Guardrail, v.Error)
			default:
				fmt.Fprintf(w, "  ✓ %s\n", v.Guardrail)
			}
		}
	}
	if r.Checked > 1 {
		fmt.Fprintf(w, "\n%d checked, %d blocked\n", r.Checked, r.Blocked)
	}
	return nil
}

// Header is the CSV header: one row per guardrail verdict.
func (r *checkReport) Header() []string {
	return []string{"input", "stage", "blocked", "guardrail", "triggered", "severity", "message", "duration_ms"}
}

// Rows returns one row per verdict.
func (r *checkReport) Rows() [][]string {
	var rows [][]string
	for _, res := range r.Results {
		for _, v := range res.Guardrails {
			rows = append(rows, []string{
				res.Input,
				res.Stage,
				strconv.FormatBool(res.Blocked),
				v.Guardrail,
				strconv.FormatBool(v.Triggered),
				v.Severity,
				v.Message,
				strconv.FormatFloat(v.DurationMs, 'f', 3, 64),
			})
		}
	}
	return rows
}
