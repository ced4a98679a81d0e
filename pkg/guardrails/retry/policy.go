package retry

import (
	"fmt"
	"strings"
	"time"

	"mercator-hq/guardrails/pkg/config"
	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/backoff"
	"mercator-hq/guardrails/pkg/providers"
)

// Input is what a BuildParamsFunc sees after a blocked attempt.
type Input struct {
	// Summary is the output summary that blocked the attempt.
	Summary *guardrails.Summary

	// Last is the request the blocked attempt was made with.
	Last *providers.CompletionRequest

	// Original is the request the caller submitted.
	Original *providers.CompletionRequest

	// Attempt is the 1-based number of the blocked attempt.
	Attempt int
}

// BuildParamsFunc derives the request for the next attempt. It must not
// mutate Last or Original.
type BuildParamsFunc func(Input) *providers.CompletionRequest

// Policy controls how blocked output is retried. The zero value never retries.
type Policy struct {
	// MaxRetries is the number of attempts allowed after the first.
	MaxRetries int

	// Backoff computes the delay before each retry. Nil means no delay.
	Backoff backoff.Func

	// BuildRetryParams derives the next request. Nil uses DefaultBuildRetryParams.
	BuildRetryParams BuildParamsFunc
}

// FromConfig builds a policy from the retry section of the application
// configuration.
func FromConfig(cfg config.RetryConfig) (Policy, error) {
	fn, err := backoff.FromConfig(cfg)
	if err != nil {
		return Policy{}, fmt.Errorf("retry backoff: %w", err)
	}
	p := Policy{MaxRetries: cfg.MaxRetries, Backoff: fn}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", p.MaxRetries)
	}
	return nil
}

// Enabled reports whether the policy allows any retry.
func (p Policy) Enabled() bool {
	return p.MaxRetries > 0
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return max(p.Backoff(attempt), 0)
}

func (p Policy) build(in Input) *providers.CompletionRequest {
	build := p.BuildRetryParams
	if build == nil {
		build = DefaultBuildRetryParams
	}
	if next := build(in); next != nil {
		return next
	}
	return in.Last
}

// DefaultBuildRetryParams copies the last request and appends one user
// message describing why the previous response was rejected. It only ever
// adds a message, so it works for any guardrail.
func DefaultBuildRetryParams(in Input) *providers.CompletionRequest {
	next := in.Last.Clone()
	if next == nil {
		next = in.Original.Clone()
	}
	if next == nil {
		return nil
	}

	v, ok := in.Summary.FirstBlocked()
	if !ok {
		return next
	}

	next.Messages = append(next.Messages, providers.Message{
		Role:    providers.RoleUser,
		Content: CorrectiveInstruction(v),
	})
	return next
}

// CorrectiveInstruction renders the message DefaultBuildRetryParams appends
// for a blocked verdict.
func CorrectiveInstruction(v guardrails.Verdict) string {
	var b strings.Builder

	b.WriteString("Your previous response was rejected")
	if v.Guardrail != "" {
		fmt.Fprintf(&b, " by the %s guardrail", v.Guardrail)
	}
	if v.Message != "" {
		fmt.Fprintf(&b, ": %s", strings.TrimSuffix(v.Message, "."))
	}
	b.WriteString(".")

	if reason, ok := v.Metadata[guardrails.MetadataReason]; ok {
		fmt.Fprintf(&b, " Reason: %v.", reason)
	}
	if v.Suggestion != "" {
		fmt.Fprintf(&b, " Suggestion: %s", v.Suggestion)
		if !strings.HasSuffix(v.Suggestion, ".") {
			b.WriteString(".")
		}
	}

	b.WriteString(" Please provide a revised response that addresses this.")
	return b.String()
}
