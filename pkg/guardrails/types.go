package guardrails

import (
	"fmt"
	"maps"
	"time"

	"mercator-hq/guardrails/pkg/providers"
)

// Stage names a phase of the pipeline.
type Stage string

const (
	// StagePreFlight runs before input checks, typically over plain text.
	StagePreFlight Stage = "pre_flight"

	// StageInput runs over the request before the provider is called.
	StageInput Stage = "input"

	// StageOutput runs over the completed response.
	StageOutput Stage = "output"
)

// Stages lists every known stage in execution order.
var Stages = []Stage{StagePreFlight, StageInput, StageOutput}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StagePreFlight, StageInput, StageOutput:
		return true
	}
	return false
}

// Severity grades how serious a triggered verdict is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 0 (unset) to 4 (critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// ParseSeverity parses a severity name. The empty string yields medium.
func ParseSeverity(s string) (Severity, error) {
	if s == "" {
		return SeverityMedium, nil
	}
	sev := Severity(s)
	if sev.Rank() == 0 {
		return "", fmt.Errorf("unknown severity %q (must be low, medium, high or critical)", s)
	}
	return sev, nil
}

// Well-known context metadata keys.
const (
	MetadataPartial   = "partial"
	MetadataAttempt   = "attempt"
	MetadataRequestID = "request_id"
	MetadataError     = "error"
	MetadataReason    = "reason"
)

// Context is the snapshot a stage runs over. Every guardrail in a run receives
// the same value and must treat it as read-only.
type Context struct {
	// Stage is the stage being executed.
	Stage Stage

	// Request is the completion request. Nil for plain-text checks.
	Request *providers.CompletionRequest

	// Response is the completion response (output stage only).
	Response *providers.CompletionResponse

	// Text is the content under inspection: the prompt text for input
	// stages and the completion text for the output stage.
	Text string

	// ToolCalls are the tool calls produced by the model (output stage only).
	ToolCalls []providers.ToolCall

	// Metadata carries run-scoped values such as "partial" and "attempt".
	Metadata map[string]any
}

// Partial reports whether the content came from a stream that ended early.
func (c Context) Partial() bool {
	v, _ := c.Metadata[MetadataPartial].(bool)
	return v
}

// Attempt returns the retry attempt recorded in metadata, or 1.
func (c Context) Attempt() int {
	if v, ok := c.Metadata[MetadataAttempt].(int); ok && v > 0 {
		return v
	}
	return 1
}

// WithMetadata returns a copy of c with key set. The original map is not modified.
func (c Context) WithMetadata(key string, value any) Context {
	md := make(map[string]any, len(c.Metadata)+1)
	maps.Copy(md, c.Metadata)
	md[key] = value
	c.Metadata = md
	return c
}

// Verdict is the result of one guardrail execution.
type Verdict struct {
	// Guardrail is the name of the guardrail that produced the verdict.
	Guardrail string `json:"guardrail"`

	// TripwireTriggered is true when the guardrail blocks. A verdict with
	// TripwireTriggered false is a pass regardless of the other fields.
	TripwireTriggered bool `json:"tripwire_triggered"`

	Message    string         `json:"message,omitempty"`
	Severity   Severity       `json:"severity,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`

	// Err is the error behind a synthetic verdict (timeout, execution error,
	// validation error) or the error swallowed by a fail-open guardrail.
	Err error `json:"-"`

	// ExecutionTime is how long the guardrail took, measured by the engine.
	ExecutionTime time.Duration `json:"execution_time"`
}

// Pass returns a passing verdict.
func Pass() Verdict {
	return Verdict{}
}

// Trip returns a triggered verdict.
func Trip(severity Severity, message string) Verdict {
	return Verdict{TripwireTriggered: true, Severity: severity, Message: message}
}

// Passed reports whether the verdict did not trigger.
func (v Verdict) Passed() bool {
	return !v.TripwireTriggered
}

// WithMetadata returns a copy of v with key set in its metadata.
func (v Verdict) WithMetadata(key string, value any) Verdict {
	md := make(map[string]any, len(v.Metadata)+1)
	maps.Copy(md, v.Metadata)
	md[key] = value
	v.Metadata = md
	return v
}

// WithSuggestion returns a copy of v carrying a corrective suggestion.
func (v Verdict) WithSuggestion(s string) Verdict {
	v.Suggestion = s
	return v
}

// BlockedGuardrail identifies one triggered guardrail in a blocked error.
type BlockedGuardrail struct {
	Name     string   `json:"name"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Summary is the aggregate result of running every guardrail in one stage once.
// All is ordered like the input guardrails; Blocked and Passed partition All.
type Summary struct {
	All      []Verdict     `json:"all"`
	Blocked  []Verdict     `json:"blocked"`
	Passed   []Verdict     `json:"passed"`
	Duration time.Duration `json:"duration"`
}

// NewSummary partitions verdicts into blocked and passed, keeping order.
func NewSummary(all []Verdict, duration time.Duration) *Summary {
	s := &Summary{
		All:      all,
		Blocked:  make([]Verdict, 0),
		Passed:   make([]Verdict, 0, len(all)),
		Duration: duration,
	}
	for _, v := range all {
		if v.TripwireTriggered {
			s.Blocked = append(s.Blocked, v)
		} else {
			s.Passed = append(s.Passed, v)
		}
	}
	return s
}

// Triggered reports whether any guardrail blocked.
func (s *Summary) Triggered() bool {
	return s != nil && len(s.Blocked) > 0
}

// FirstBlocked returns the first blocked verdict in input order.
func (s *Summary) FirstBlocked() (Verdict, bool) {
	if !s.Triggered() {
		return Verdict{}, false
	}
	return s.Blocked[0], true
}

// BlockedGuardrails lists every triggered guardrail.
func (s *Summary) BlockedGuardrails() []BlockedGuardrail {
	if s == nil {
		return nil
	}
	out := make([]BlockedGuardrail, 0, len(s.Blocked))
	for _, v := range s.Blocked {
		out = append(out, BlockedGuardrail{Name: v.Guardrail, Message: v.Message, Severity: v.Severity})
	}
	return out
}

// MaxSeverity returns the highest severity among blocked verdicts.
func (s *Summary) MaxSeverity() Severity {
	var highest Severity
	if s == nil {
		return highest
	}
	for _, v := range s.Blocked {
		if v.Severity.Rank() > highest.Rank() {
			highest = v.Severity
		}
	}
	return highest
}
