package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/guardrails/pkg/config"
	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/providers"
	"mercator-hq/guardrails/pkg/telemetry/logging"
	"mercator-hq/guardrails/pkg/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func blockedSummary(name, message string) *guardrails.Summary {
	v := guardrails.Trip(guardrails.SeverityHigh, message)
	v.Guardrail = name
	return guardrails.NewSummary([]guardrails.Verdict{v}, time.Millisecond)
}

func passedSummary() *guardrails.Summary {
	v := guardrails.Pass()
	v.Guardrail = "ok"
	return guardrails.NewSummary([]guardrails.Verdict{v}, time.Millisecond)
}

func baseRequest() *providers.CompletionRequest {
	return &providers.CompletionRequest{
		Model:       "test-model",
		Temperature: 0.2,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "be brief"},
			{Role: providers.RoleUser, Content: "hello"},
		},
		Metadata: map[string]string{"tenant": "acme"},
	}
}

type recordedSleep struct {
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

// ==================== Policy ====================

func TestPolicy_Validate(t *testing.T) {
	if err := (Policy{MaxRetries: -1}).Validate(); err == nil {
		t.Error("Expected error for negative max retries")
	}
	if err := (Policy{}).Validate(); err != nil {
		t.Errorf("Expected zero policy to be valid, got %v", err)
	}
	if (Policy{}).Enabled() {
		t.Error("Expected zero policy to be disabled")
	}
}

func TestFromConfig(t *testing.T) {
	p, err := FromConfig(config.RetryConfig{
		MaxRetries: 3,
		Strategy:   "linear",
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   250 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if p.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", p.MaxRetries)
	}
	if got := p.Backoff(3); got != 250*time.Millisecond {
		t.Errorf("Expected capped linear delay 250ms, got %v", got)
	}

	if _, err := FromConfig(config.RetryConfig{Strategy: "random"}); err == nil {
		t.Error("Expected error for unknown strategy")
	}
	if _, err := FromConfig(config.RetryConfig{MaxRetries: -2}); err == nil {
		t.Error("Expected error for negative max retries")
	}
}

// ==================== Run ====================

func TestRun_PassFirstAttempt(t *testing.T) {
	calls := 0
	res, err := Run(context.Background(), Policy{MaxRetries: 3}, baseRequest(),
		func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[string], error) {
			calls++
			return Outcome[string]{Value: "fine", Summary: passedSummary()}, nil
		}, WithLogger(logging.Discard()))

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 1 || res.Attempts != 1 {
		t.Errorf("Expected a single attempt, got calls=%d attempts=%d", calls, res.Attempts)
	}
	if res.Value != "fine" || res.Blocked() {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestRun_RecoversAfterRetry(t *testing.T) {
	sleeper := &recordedSleep{}
	var seen []*providers.CompletionRequest

	policy := Policy{
		MaxRetries: 3,
		Backoff:    func(attempt int) time.Duration { return time.Duration(attempt) * 10 * time.Millisecond },
	}

	res, err := Run(context.Background(), policy, baseRequest(),
		func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[string], error) {
			seen = append(seen, req)
			if attempt < 3 {
				return Outcome[string]{Value: "bad", Summary: blockedSummary("tone", "too rude")}, nil
			}
			return Outcome[string]{Value: "good", Summary: passedSummary()}, nil
		}, WithSleep(sleeper.sleep), WithLogger(logging.Discard()))

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Attempts != 3 || res.Value != "good" {
		t.Errorf("Expected success on attempt 3, got %+v", res)
	}
	if len(sleeper.delays) != 2 || sleeper.delays[0] != 10*time.Millisecond || sleeper.delays[1] != 20*time.Millisecond {
		t.Errorf("Expected delays [10ms 20ms], got %v", sleeper.delays)
	}
	if len(seen[1].Messages) != 3 || len(seen[2].Messages) != 4 {
		t.Errorf("Expected one corrective message per retry, got %d and %d messages",
			len(seen[1].Messages), len(seen[2].Messages))
	}
	if len(seen[0].Messages) != 2 {
		t.Errorf("Expected original request untouched, got %d messages", len(seen[0].Messages))
	}
}

func TestRun_Exhausted(t *testing.T) {
	sleeper := &recordedSleep{}
	calls := 0

	res, err := Run(context.Background(), Policy{MaxRetries: 2}, baseRequest(),
		func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[int], error) {
			calls++
			return Outcome[int]{Value: attempt, Summary: blockedSummary("g", fmtAttempt(attempt))}, nil
		}, WithSleep(sleeper.sleep), WithLogger(logging.Discard()))

	if err != nil {
		t.Fatalf("Expected nil error on exhaustion, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 1 + MaxRetries = 3 attempts, got %d", calls)
	}
	if !res.Blocked() {
		t.Error("Expected final result to be blocked")
	}
	if res.Value != 3 {
		t.Errorf("Expected last attempt value 3, got %d", res.Value)
	}
	if v, _ := res.Summary.FirstBlocked(); v.Message != "attempt 3" {
		t.Errorf("Expected last blocked summary, got message %q", v.Message)
	}
}

func TestRun_ZeroRetries(t *testing.T) {
	calls := 0
	res, err := Run(context.Background(), Policy{}, baseRequest(),
		func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[string], error) {
			calls++
			return Outcome[string]{Summary: blockedSummary("g", "no")}, nil
		}, WithLogger(logging.Discard()))

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 1 || !res.Blocked() {
		t.Errorf("Expected one blocked attempt, got calls=%d blocked=%v", calls, res.Blocked())
	}
}

func TestRun_ErrorStopsLoop(t *testing.T) {
	inputBlocked := guardrails.NewInputBlockedError(blockedSummary("pii", "email"))
	calls := 0

	_, err := Run(context.Background(), Policy{MaxRetries: 5}, baseRequest(),
		func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[string], error) {
			calls++
			if attempt == 2 {
				return Outcome[string]{}, inputBlocked
			}
			return Outcome[string]{Summary: blockedSummary("g", "no")}, nil
		}, WithSleep(func(context.Context, time.Duration) error { return nil }), WithLogger(logging.Discard()))

	if !errors.Is(err, guardrails.ErrBlocked) {
		t.Errorf("Expected input block to surface, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected loop to stop at attempt 2, got %d calls", calls)
	}
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	res, err := Run(ctx, Policy{MaxRetries: 3, Backoff: func(int) time.Duration { return time.Hour }}, baseRequest(),
		func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[string], error) {
			calls++
			cancel()
			return Outcome[string]{Summary: blockedSummary("g", "no")}, nil
		}, WithLogger(logging.Discard()))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected no further attempts, got %d calls", calls)
	}
	if !res.Blocked() {
		t.Error("Expected last blocked summary in result")
	}
}

func TestRun_CustomBuilder(t *testing.T) {
	var inputs []Input
	policy := Policy{
		MaxRetries: 1,
		BuildRetryParams: func(in Input) *providers.CompletionRequest {
			inputs = append(inputs, in)
			next := in.Last.Clone()
			next.Temperature = 0
			return next
		},
	}

	var last *providers.CompletionRequest
	original := baseRequest()
	_, err := Run(context.Background(), policy, original,
		func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[string], error) {
			last = req
			if attempt == 1 {
				return Outcome[string]{Summary: blockedSummary("g", "no")}, nil
			}
			return Outcome[string]{Summary: passedSummary()}, nil
		}, WithSleep(func(context.Context, time.Duration) error { return nil }), WithLogger(logging.Discard()))

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(inputs) != 1 {
		t.Fatalf("Expected builder to be called once, got %d", len(inputs))
	}
	if inputs[0].Original != original || inputs[0].Last != original || inputs[0].Attempt != 1 {
		t.Errorf("Unexpected builder input: %+v", inputs[0])
	}
	if last.Temperature != 0 {
		t.Errorf("Expected custom request on retry, got temperature %v", last.Temperature)
	}
}

func TestRun_NilBuilderResultReusesRequest(t *testing.T) {
	var reqs []*providers.CompletionRequest
	original := baseRequest()
	policy := Policy{MaxRetries: 1, BuildRetryParams: func(Input) *providers.CompletionRequest { return nil }}

	_, _ = Run(context.Background(), policy, original,
		func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[string], error) {
			reqs = append(reqs, req)
			return Outcome[string]{Summary: blockedSummary("g", "no")}, nil
		}, WithSleep(func(context.Context, time.Duration) error { return nil }), WithLogger(logging.Discard()))

	if len(reqs) != 2 || reqs[1] != original {
		t.Errorf("Expected retry with the last request, got %v", reqs)
	}
}

func TestRun_Metrics(t *testing.T) {
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "t", Subsystem: "retry"}, nil)

	_, _ = Run(context.Background(), Policy{MaxRetries: 1}, baseRequest(),
		func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[string], error) {
			return Outcome[string]{Summary: blockedSummary("g", "no")}, nil
		},
		WithSleep(func(context.Context, time.Duration) error { return nil }),
		WithLogger(logging.Discard()),
		WithMetrics(collector),
	)

	n, err := testutil.GatherAndCount(collector.Registry(), "t_retry_retries_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Expected scheduled and exhausted series, got %d", n)
	}
}

// ==================== DefaultBuildRetryParams ====================

func TestDefaultBuildRetryParams(t *testing.T) {
	original := baseRequest()
	v := guardrails.Trip(guardrails.SeverityHigh, "Contains an email address").
		WithMetadata(guardrails.MetadataReason, "pii").
		WithSuggestion("Remove personal data")
	v.Guardrail = "pii"
	summary := guardrails.NewSummary([]guardrails.Verdict{v}, 0)

	next := DefaultBuildRetryParams(Input{Summary: summary, Last: original, Original: original, Attempt: 1})

	if next == original {
		t.Fatal("Expected a copy, got the same request")
	}
	if len(original.Messages) != 2 {
		t.Errorf("Expected original untouched, got %d messages", len(original.Messages))
	}
	if len(next.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(next.Messages))
	}

	added := next.Messages[2]
	if added.Role != providers.RoleUser {
		t.Errorf("Expected user role, got %q", added.Role)
	}
	for _, want := range []string{"pii guardrail", "Contains an email address", "Reason: pii", "Suggestion: Remove personal data."} {
		if !strings.Contains(added.Content, want) {
			t.Errorf("Expected corrective message to contain %q, got %q", want, added.Content)
		}
	}

	if next.Model != original.Model || next.Temperature != original.Temperature || next.Metadata["tenant"] != "acme" {
		t.Error("Expected every other field to be preserved")
	}
}

func TestDefaultBuildRetryParams_UnknownGuardrail(t *testing.T) {
	summary := guardrails.NewSummary([]guardrails.Verdict{{TripwireTriggered: true}}, 0)

	next := DefaultBuildRetryParams(Input{Summary: summary, Last: baseRequest()})

	if len(next.Messages) != 3 {
		t.Fatalf("Expected corrective message even without details, got %d messages", len(next.Messages))
	}
	if !strings.HasPrefix(next.Messages[2].Content, "Your previous response was rejected.") {
		t.Errorf("Unexpected message: %q", next.Messages[2].Content)
	}
}

func TestDefaultBuildRetryParams_NoBlock(t *testing.T) {
	next := DefaultBuildRetryParams(Input{Summary: passedSummary(), Last: baseRequest()})
	if len(next.Messages) != 2 {
		t.Errorf("Expected no message appended, got %d messages", len(next.Messages))
	}
}

func TestSleepWithContext(t *testing.T) {
	if err := sleepWithContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Expected cancelled sleep to return immediately")
	}
}

func fmtAttempt(n int) string {
	return "attempt " + string(rune('0'+n))
}
