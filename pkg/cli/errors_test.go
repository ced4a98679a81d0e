package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConfigError
		expected string
	}{
		{
			name:     "with field",
			err:      NewConfigError("retry.max_retries", "must be non-negative"),
			expected: "config error in retry.max_retries: must be non-negative",
		},
		{
			name:     "without field",
			err:      NewConfigError("", "failed to load config"),
			expected: "config error: failed to load config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.expected)
			}
		})
	}
}

func TestCommandError(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("check", underlyingErr)

	expected := "command check failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestExitCode(t *testing.T) {
	blocked := NewExitError(ExitBlocked, errors.New("blocked"))

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: ExitOK},
		{name: "plain error", err: errors.New("boom"), expected: ExitFailure},
		{name: "exit error", err: blocked, expected: ExitBlocked},
		{name: "wrapped exit error", err: fmt.Errorf("check: %w", blocked), expected: ExitBlocked},
		{name: "command error", err: NewCommandError("validate", errors.New("bad")), expected: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.expected {
				t.Errorf("ExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: ExitBlocked}
	if err.Error() != "exit status 1" {
		t.Errorf("Error() = %q, want %q", err.Error(), "exit status 1")
	}
	if Silent(err) {
		t.Error("Expected non-silent error")
	}

	err.Silent = true
	if !Silent(fmt.Errorf("wrapped: %w", err)) {
		t.Error("Expected Silent to see through wrapping")
	}
	if Silent(errors.New("other")) {
		t.Error("Expected plain errors not to be silent")
	}
}
