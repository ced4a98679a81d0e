package guardrails

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Common sentinel errors
var (
	// ErrBlocked matches InputBlockedError and OutputBlockedError with errors.Is.
	ErrBlocked = errors.New("blocked by guardrails")

	// ErrUnknownGuardrail matches a ConfigurationError with unresolved names.
	ErrUnknownGuardrail = errors.New("unknown guardrail")

	// ErrUnsupportedVersion matches a ConfigurationError with a bad version field.
	ErrUnsupportedVersion = errors.New("unsupported config version")
)

// Error codes used in ErrorRecord.Code.
const (
	CodeValidation    = "GUARDRAIL_VALIDATION_ERROR"
	CodeExecution     = "GUARDRAIL_EXECUTION_ERROR"
	CodeTimeout       = "GUARDRAIL_TIMEOUT_ERROR"
	CodeConfiguration = "GUARDRAIL_CONFIGURATION_ERROR"
	CodeInputBlocked  = "INPUT_BLOCKED"
	CodeOutputBlocked = "OUTPUT_BLOCKED"
	CodeMiddleware    = "MIDDLEWARE_ERROR"
)

// ErrorRecord is the structured, JSON-serializable form of a guardrail error.
type ErrorRecord struct {
	Name      string         `json:"name"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Stack     string         `json:"stack,omitempty"`
}

// Recordable is implemented by every error type in this package.
type Recordable interface {
	error
	ToRecord() ErrorRecord
}

// ToRecord converts err into an ErrorRecord. Errors that do not implement
// Recordable are reported with code "UNKNOWN_ERROR".
func ToRecord(err error) ErrorRecord {
	if err == nil {
		return ErrorRecord{}
	}
	var r Recordable
	if errors.As(err, &r) {
		return r.ToRecord()
	}
	return ErrorRecord{
		Name:      "Error",
		Code:      "UNKNOWN_ERROR",
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// origin records when and where an error was constructed.
type origin struct {
	at    time.Time
	stack string
}

func newOrigin() origin {
	return origin{at: time.Now().UTC(), stack: callers(3)}
}

func (o origin) timestamp() time.Time {
	if o.at.IsZero() {
		return time.Now().UTC()
	}
	return o.at
}

func callers(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// ValidationError indicates a guardrail's own input failed structural
// validation. It becomes part of that guardrail's blocked verdict.
type ValidationError struct {
	Guardrail string
	Field     string
	Message   string
	origin
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, origin: newOrigin()}
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	prefix := "guardrail validation failed"
	if e.Guardrail != "" {
		prefix = fmt.Sprintf("guardrail %s: validation failed", e.Guardrail)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", prefix, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// ToRecord implements Recordable.
func (e *ValidationError) ToRecord() ErrorRecord {
	return ErrorRecord{
		Name:      "GuardrailValidationError",
		Code:      CodeValidation,
		Message:   e.Error(),
		Timestamp: e.timestamp(),
		Metadata:  map[string]any{"guardrail": e.Guardrail, "field": e.Field},
		Stack:     e.stack,
	}
}

// ExecutionError indicates a guardrail returned an error or panicked.
type ExecutionError struct {
	Guardrail     string
	OriginalError error
	origin
}

// NewExecutionError wraps the error a guardrail returned.
func NewExecutionError(guardrail string, err error) *ExecutionError {
	return &ExecutionError{Guardrail: guardrail, OriginalError: err, origin: newOrigin()}
}

// Error returns the error message.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("guardrail %s: execution failed: %v", e.Guardrail, e.OriginalError)
}

// Unwrap returns the original error.
func (e *ExecutionError) Unwrap() error {
	return e.OriginalError
}

// ToRecord implements Recordable.
func (e *ExecutionError) ToRecord() ErrorRecord {
	md := map[string]any{"guardrail": e.Guardrail}
	if e.OriginalError != nil {
		md["original_error"] = e.OriginalError.Error()
	}
	return ErrorRecord{
		Name:      "GuardrailExecutionError",
		Code:      CodeExecution,
		Message:   e.Error(),
		Timestamp: e.timestamp(),
		Metadata:  md,
		Stack:     e.stack,
	}
}

// TimeoutError indicates a guardrail exceeded its time budget. The guardrail's
// work is abandoned, not awaited.
type TimeoutError struct {
	Guardrail string
	Timeout   time.Duration
	origin
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(guardrail string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{Guardrail: guardrail, Timeout: timeout, origin: newOrigin()}
}

// Error returns the error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("guardrail %s: timed out after %v", e.Guardrail, e.Timeout)
}

// ToRecord implements Recordable.
func (e *TimeoutError) ToRecord() ErrorRecord {
	return ErrorRecord{
		Name:      "GuardrailTimeoutError",
		Code:      CodeTimeout,
		Message:   e.Error(),
		Timestamp: e.timestamp(),
		Metadata:  map[string]any{"guardrail": e.Guardrail, "timeout_ms": e.Timeout.Milliseconds()},
		Stack:     e.stack,
	}
}

// ConfigurationError reports every problem found while loading or resolving
// a pipeline configuration. It is returned at load time, never at run time.
type ConfigurationError struct {
	// Unresolved lists every guardrail name the registry does not know.
	Unresolved []string

	// UnsupportedVersions lists every location with a bad version field.
	UnsupportedVersions []string

	// Problems lists any other issues (malformed stages, factory errors).
	Problems []string
	origin
}

// NewConfigurationError creates an empty configuration error to be filled in.
func NewConfigurationError() *ConfigurationError {
	return &ConfigurationError{origin: newOrigin()}
}

// HasProblems reports whether anything was recorded.
func (e *ConfigurationError) HasProblems() bool {
	return len(e.Unresolved) > 0 || len(e.UnsupportedVersions) > 0 || len(e.Problems) > 0
}

// Error returns the error message.
func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Unresolved) > 0 {
		parts = append(parts, "unknown guardrails: "+strings.Join(e.Unresolved, ", "))
	}
	if len(e.UnsupportedVersions) > 0 {
		parts = append(parts, "unsupported versions: "+strings.Join(e.UnsupportedVersions, ", "))
	}
	parts = append(parts, e.Problems...)
	if len(parts) == 0 {
		return "guardrail configuration error"
	}
	return "guardrail configuration error: " + strings.Join(parts, "; ")
}

// Is matches ErrUnknownGuardrail and ErrUnsupportedVersion.
func (e *ConfigurationError) Is(target error) bool {
	switch target {
	case ErrUnknownGuardrail:
		return len(e.Unresolved) > 0
	case ErrUnsupportedVersion:
		return len(e.UnsupportedVersions) > 0
	}
	return false
}

// ToRecord implements Recordable.
func (e *ConfigurationError) ToRecord() ErrorRecord {
	return ErrorRecord{
		Name:      "GuardrailConfigurationError",
		Code:      CodeConfiguration,
		Message:   e.Error(),
		Timestamp: e.timestamp(),
		Metadata: map[string]any{
			"unresolved":           e.Unresolved,
			"unsupported_versions": e.UnsupportedVersions,
			"problems":             e.Problems,
		},
		Stack: e.stack,
	}
}

// InputBlockedError is returned when input guardrails block a call in block
// mode. The provider was never invoked.
type InputBlockedError struct {
	BlockedGuardrails []BlockedGuardrail
	Summary           *Summary
	origin
}

// NewInputBlockedError builds the error from a blocked summary.
func NewInputBlockedError(summary *Summary) *InputBlockedError {
	return &InputBlockedError{
		BlockedGuardrails: summary.BlockedGuardrails(),
		Summary:           summary,
		origin:            newOrigin(),
	}
}

// Error returns the error message.
func (e *InputBlockedError) Error() string {
	return "input " + describeBlocked(e.BlockedGuardrails)
}

// Is matches ErrBlocked.
func (e *InputBlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// ToRecord implements Recordable.
func (e *InputBlockedError) ToRecord() ErrorRecord {
	return ErrorRecord{
		Name:      "InputBlockedError",
		Code:      CodeInputBlocked,
		Message:   e.Error(),
		Timestamp: e.timestamp(),
		Metadata:  map[string]any{"blocked_guardrails": e.BlockedGuardrails},
		Stack:     e.stack,
	}
}

// OutputBlockedError is returned when output guardrails block a call in block
// mode. The response was discarded, except for streamed chunks the caller
// already received.
type OutputBlockedError struct {
	BlockedGuardrails []BlockedGuardrail
	Summary           *Summary

	// Attempts is the number of attempts made, including retries.
	Attempts int

	// Partial is true when the blocked content came from a stream that ended early.
	Partial bool
	origin
}

// NewOutputBlockedError builds the error from the last blocked summary.
func NewOutputBlockedError(summary *Summary, attempts int) *OutputBlockedError {
	return &OutputBlockedError{
		BlockedGuardrails: summary.BlockedGuardrails(),
		Summary:           summary,
		Attempts:          attempts,
		origin:            newOrigin(),
	}
}

// Error returns the error message.
func (e *OutputBlockedError) Error() string {
	msg := "output " + describeBlocked(e.BlockedGuardrails)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	return msg
}

// Is matches ErrBlocked.
func (e *OutputBlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// ToRecord implements Recordable.
func (e *OutputBlockedError) ToRecord() ErrorRecord {
	return ErrorRecord{
		Name:      "OutputBlockedError",
		Code:      CodeOutputBlocked,
		Message:   e.Error(),
		Timestamp: e.timestamp(),
		Metadata: map[string]any{
			"blocked_guardrails": e.BlockedGuardrails,
			"attempts":           e.Attempts,
			"partial":            e.Partial,
		},
		Stack: e.stack,
	}
}

func describeBlocked(blocked []BlockedGuardrail) string {
	names := make([]string, len(blocked))
	for i, b := range blocked {
		names[i] = b.Name
	}
	return fmt.Sprintf("blocked by %d guardrail(s): %s", len(blocked), strings.Join(names, ", "))
}

// MiddlewareError wraps a failure in adapter plumbing that is not a guardrail
// decision, such as the provider call itself failing.
type MiddlewareError struct {
	MiddlewareType string
	Phase          string
	Cause          error
	origin
}

// NewMiddlewareError wraps cause.
func NewMiddlewareError(middlewareType, phase string, cause error) *MiddlewareError {
	return &MiddlewareError{MiddlewareType: middlewareType, Phase: phase, Cause: cause, origin: newOrigin()}
}

// Error returns the error message.
func (e *MiddlewareError) Error() string {
	return fmt.Sprintf("%s middleware failed during %s: %v", e.MiddlewareType, e.Phase, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *MiddlewareError) Unwrap() error {
	return e.Cause
}

// ToRecord implements Recordable.
func (e *MiddlewareError) ToRecord() ErrorRecord {
	md := map[string]any{"middleware_type": e.MiddlewareType, "phase": e.Phase}
	if e.Cause != nil {
		md["cause"] = e.Cause.Error()
	}
	return ErrorRecord{
		Name:      "MiddlewareError",
		Code:      CodeMiddleware,
		Message:   e.Error(),
		Timestamp: e.timestamp(),
		Metadata:  md,
		Stack:     e.stack,
	}
}
