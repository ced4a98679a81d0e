package providers

import (
	"errors"
	"fmt"
	"strconv"
)

// ProviderError is a failed provider call. StatusCode is the upstream HTTP
// status, or 0 when the failure happened before a response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// StreamError is a failure opening or reading a completion stream. Providers
// deliver it in StreamChunk.Error.
type StreamError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s stream: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %s stream: %s", e.Provider, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// StatusLabel classifies err for metrics: "success" for nil, the HTTP status
// of a wrapped ProviderError when known, and "error" otherwise.
func StatusLabel(err error) string {
	if err == nil {
		return "success"
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode > 0 {
		return strconv.Itoa(pe.StatusCode)
	}
	return "error"
}
