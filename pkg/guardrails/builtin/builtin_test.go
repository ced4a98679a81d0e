package builtin

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/pipeline"
	"mercator-hq/guardrails/pkg/providers"
)

func run(t *testing.T, g *guardrails.Guardrail, in guardrails.Context) guardrails.Verdict {
	t.Helper()
	v, err := g.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return v
}

// ==================== Registry ====================

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	expected := []string{NameAllowedTools, NameBlockedTerms, NameMaxLength, NameMaxTokens, NamePII, NameRateLimit, NameRegex, NameTokenBudget}
	if got := r.Names(); !slices.Equal(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
	if err := Register(r); err == nil {
		t.Error("Expected error registering built-ins twice")
	}
}

func TestFactories_CommonOptions(t *testing.T) {
	r := NewRegistry()
	g, err := r.Build(NameMaxLength, map[string]any{
		"max_chars": 10,
		"timeout":   "250ms",
		"fail_open": true,
		"priority":  7,
		"tags":      []any{"pii", "length"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if g.Timeout() != 250*time.Millisecond {
		t.Errorf("Expected timeout 250ms, got %v", g.Timeout())
	}
	if !g.FailOpen() {
		t.Error("Expected fail-open")
	}
	if g.Priority() != 7 {
		t.Errorf("Expected priority 7, got %d", g.Priority())
	}
	if !g.HasTag("pii") {
		t.Errorf("Expected tag pii, got %v", g.Tags())
	}
}

func TestFactories_InvalidConfig(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{name: NameMaxLength, cfg: map[string]any{}},
		{name: NameMaxLength, cfg: map[string]any{"max_chars": 10, "max_char": 5}},
		{name: NameMaxLength, cfg: map[string]any{"max_chars": 10, "severity": "extreme"}},
		{name: NameBlockedTerms, cfg: map[string]any{"terms": []any{}}},
		{name: NameBlockedTerms, cfg: map[string]any{"terms": []any{" "}}},
		{name: NameRegex, cfg: map[string]any{"pattern": "("}},
		{name: NameRegex, cfg: map[string]any{"pattern": "a", "mode": "maybe"}},
		{name: NameRateLimit, cfg: map[string]any{}},
		{name: NameRateLimit, cfg: map[string]any{"requests_per_minute": 1, "key": "ip"}},
		{name: NameRateLimit, cfg: map[string]any{"requests_per_minute": -1}},
		{name: NameTokenBudget, cfg: map[string]any{}},
		{name: NameTokenBudget, cfg: map[string]any{"daily": -5}},
		{name: NameTokenBudget, cfg: map[string]any{"daily": 5, "alert_threshold": 2}},
		{name: NameTokenBudget, cfg: map[string]any{"daily": 5, "key": "ip"}},
		{name: NameAllowedTools, cfg: map[string]any{}},
		{name: NameMaxTokens, cfg: map[string]any{}},
		{name: NameMaxTokens, cfg: map[string]any{"max_tokens": 0}},
		{name: NamePII, cfg: map[string]any{"types": []any{"passport"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Build(tt.name, tt.cfg); err == nil {
				t.Errorf("Expected error for config %v", tt.cfg)
			}
		})
	}
}

// ==================== max-length ====================

func TestMaxLength(t *testing.T) {
	g, err := NewMaxLength(MaxLengthConfig{MaxChars: 5})
	if err != nil {
		t.Fatalf("NewMaxLength failed: %v", err)
	}

	tests := []struct {
		name    string
		text    string
		tripped bool
	}{
		{name: "short", text: "hi", tripped: false},
		{name: "exact", text: "hello", tripped: false},
		{name: "multibyte counted as characters", text: "héllo", tripped: false},
		{name: "long", text: "hello!", tripped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := run(t, g, guardrails.Context{Text: tt.text})
			if v.TripwireTriggered != tt.tripped {
				t.Errorf("Expected tripped %v, got %v", tt.tripped, v.TripwireTriggered)
			}
			if tt.tripped {
				if v.Severity != guardrails.SeverityMedium {
					t.Errorf("Expected medium severity, got %s", v.Severity)
				}
				if v.Metadata["length"] != 6 {
					t.Errorf("Expected length 6, got %v", v.Metadata["length"])
				}
				if v.Suggestion == "" {
					t.Error("Expected a suggestion")
				}
			}
		})
	}
}

// ==================== blocked-terms ====================

func TestBlockedTerms(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BlockedTermsConfig
		text    string
		matched []string
	}{
		{
			name:    "case insensitive",
			cfg:     BlockedTermsConfig{Terms: []string{"Secret", "token"}},
			text:    "the SECRET is a Token",
			matched: []string{"Secret", "token"},
		},
		{
			name: "case sensitive",
			cfg:  BlockedTermsConfig{Terms: []string{"Secret"}, CaseSensitive: true},
			text: "the secret",
		},
		{
			name: "whole word",
			cfg:  BlockedTermsConfig{Terms: []string{"cat"}, WholeWord: true},
			text: "concatenate",
		},
		{
			name:    "whole word match",
			cfg:     BlockedTermsConfig{Terms: []string{"cat"}, WholeWord: true},
			text:    "a cat sat",
			matched: []string{"cat"},
		},
		{
			name:    "metacharacters are literal",
			cfg:     BlockedTermsConfig{Terms: []string{"a.b"}},
			text:    "a.b",
			matched: []string{"a.b"},
		},
		{
			name: "metacharacters do not wildcard",
			cfg:  BlockedTermsConfig{Terms: []string{"a.b"}},
			text: "axb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewBlockedTerms(tt.cfg)
			if err != nil {
				t.Fatalf("NewBlockedTerms failed: %v", err)
			}
			v := run(t, g, guardrails.Context{Text: tt.text})

			if v.TripwireTriggered != (len(tt.matched) > 0) {
				t.Fatalf("Expected tripped %v, got %v", len(tt.matched) > 0, v.TripwireTriggered)
			}
			if len(tt.matched) == 0 {
				return
			}
			got, _ := v.Metadata["matched"].([]string)
			if !slices.Equal(got, tt.matched) {
				t.Errorf("Expected matched %v, got %v", tt.matched, got)
			}
			if v.Severity != guardrails.SeverityHigh {
				t.Errorf("Expected high severity, got %s", v.Severity)
			}
		})
	}
}

func TestBlockedTerms_CustomMessageAndSeverity(t *testing.T) {
	g, err := NewBlockedTerms(BlockedTermsConfig{
		Common: Common{Severity: "critical", Message: "no internal data"},
		Terms:  []string{"internal"},
	})
	if err != nil {
		t.Fatalf("NewBlockedTerms failed: %v", err)
	}

	v := run(t, g, guardrails.Context{Text: "internal only"})
	if v.Message != "no internal data" {
		t.Errorf("Expected custom message, got %q", v.Message)
	}
	if v.Severity != guardrails.SeverityCritical {
		t.Errorf("Expected critical, got %s", v.Severity)
	}
}

// ==================== regex ====================

func TestRegex(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RegexConfig
		text    string
		tripped bool
	}{
		{name: "deny match", cfg: RegexConfig{Pattern: `\d{3}-\d{4}`}, text: "call 555-1234", tripped: true},
		{name: "deny no match", cfg: RegexConfig{Pattern: `\d{3}-\d{4}`}, text: "call me", tripped: false},
		{name: "require match", cfg: RegexConfig{Pattern: `^\{.*\}$`, Mode: RegexRequire}, text: `{"a":1}`, tripped: false},
		{name: "require missing", cfg: RegexConfig{Pattern: `^\{.*\}$`, Mode: RegexRequire}, text: "plain", tripped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewRegex(tt.cfg)
			if err != nil {
				t.Fatalf("NewRegex failed: %v", err)
			}
			v := run(t, g, guardrails.Context{Text: tt.text})
			if v.TripwireTriggered != tt.tripped {
				t.Errorf("Expected tripped %v, got %v", tt.tripped, v.TripwireTriggered)
			}
			if v.TripwireTriggered && strings.Contains(v.Message, "555") {
				t.Error("Expected matched text to stay out of the message")
			}
		})
	}
}

// ==================== rate-limit ====================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimit_Requests(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	g, err := NewRateLimit(RateLimitConfig{RequestsPerMinute: 60, Burst: 1}, clock.Now)
	if err != nil {
		t.Fatalf("NewRateLimit failed: %v", err)
	}

	alice := guardrails.Context{Stage: guardrails.StageInput, Request: &providers.CompletionRequest{User: "alice"}}
	bob := guardrails.Context{Stage: guardrails.StageInput, Request: &providers.CompletionRequest{User: "bob"}}

	if v := run(t, g, alice); v.TripwireTriggered {
		t.Fatal("Expected first request to pass")
	}

	v := run(t, g, alice)
	if !v.TripwireTriggered {
		t.Fatal("Expected second request to be limited")
	}
	if v.Metadata["key"] != "user:alice" {
		t.Errorf("Expected key user:alice, got %v", v.Metadata["key"])
	}
	if v.Metadata["retry_after_ms"] != int64(1000) {
		t.Errorf("Expected retry_after_ms 1000, got %v", v.Metadata["retry_after_ms"])
	}

	if v := run(t, g, bob); v.TripwireTriggered {
		t.Error("Expected a different user to pass")
	}

	clock.Advance(time.Second)
	if v := run(t, g, alice); v.TripwireTriggered {
		t.Error("Expected alice to pass after refill")
	}
}

func TestRateLimit_Tokens(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	g, err := NewRateLimit(RateLimitConfig{TokensPerMinute: 100, Key: KeyModel}, clock.Now)
	if err != nil {
		t.Fatalf("NewRateLimit failed: %v", err)
	}

	req := &providers.CompletionRequest{Model: "m"}
	input := guardrails.Context{Stage: guardrails.StageInput, Request: req}
	output := guardrails.Context{
		Stage:    guardrails.StageOutput,
		Request:  req,
		Response: &providers.CompletionResponse{Usage: providers.TokenUsage{TotalTokens: 150}},
	}

	if v := run(t, g, input); v.TripwireTriggered {
		t.Fatal("Expected input to pass with an empty budget")
	}
	if v := run(t, g, output); v.TripwireTriggered {
		t.Fatal("Expected output stage never to trip")
	}
	if v := run(t, g, input); !v.TripwireTriggered {
		t.Fatal("Expected input to be limited once the budget is spent")
	}

	clock.Advance(2 * time.Minute)
	if v := run(t, g, input); v.TripwireTriggered {
		t.Error("Expected budget to recover after the window")
	}
}

func TestLimitKey(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		in       guardrails.Context
		expected string
	}{
		{name: "user from request", source: KeyUser, in: guardrails.Context{Request: &providers.CompletionRequest{User: "u1"}}, expected: "user:u1"},
		{name: "user from metadata", source: KeyUser, in: guardrails.Context{Metadata: map[string]any{"user": "u2"}}, expected: "user:u2"},
		{name: "user missing", source: KeyUser, in: guardrails.Context{}, expected: KeyGlobal},
		{name: "model", source: KeyModel, in: guardrails.Context{Request: &providers.CompletionRequest{Model: "gpt"}}, expected: "model:gpt"},
		{name: "global", source: KeyGlobal, in: guardrails.Context{Request: &providers.CompletionRequest{User: "u1"}}, expected: KeyGlobal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := limitKey(tt.source, tt.in); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// ==================== allowed-tools ====================

func TestAllowedTools(t *testing.T) {
	g, err := NewAllowedTools(AllowedToolsConfig{Allow: []string{"search"}})
	if err != nil {
		t.Fatalf("NewAllowedTools failed: %v", err)
	}

	call := func(name string) providers.ToolCall {
		return providers.ToolCall{ID: name, Type: "function", Function: providers.FunctionCall{Name: name}}
	}

	if v := run(t, g, guardrails.Context{ToolCalls: []providers.ToolCall{call("search")}}); v.TripwireTriggered {
		t.Error("Expected allowed tool to pass")
	}
	if v := run(t, g, guardrails.Context{}); v.TripwireTriggered {
		t.Error("Expected no tool calls to pass")
	}

	v := run(t, g, guardrails.Context{ToolCalls: []providers.ToolCall{call("exec"), call("search"), call("exec")}})
	if !v.TripwireTriggered {
		t.Fatal("Expected disallowed tool to trip")
	}
	if got, _ := v.Metadata["denied"].([]string); !slices.Equal(got, []string{"exec"}) {
		t.Errorf("Expected denied [exec], got %v", got)
	}
}

// ==================== Pipeline integration ====================

func TestPipelineWithBuiltins(t *testing.T) {
	src := `{
		"version": 1,
		"input": {"version": 1, "guardrails": [
			{"name": "max-length", "config": {"max_chars": 20}},
			{"name": "blocked-terms", "config": {"terms": ["password"]}}
		]},
		"output": {"version": 1, "guardrails": [
			{"name": "regex", "config": {"pattern": "sk-[a-z0-9]+", "severity": "critical"}}
		]}
	}`

	r := NewRegistry()
	cfg, err := pipeline.Load(r, src)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p, err := pipeline.New(cfg, r)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := p.CheckPlainText(context.Background(), "my password is long enough")
	if err != nil {
		t.Fatalf("CheckPlainText failed: %v", err)
	}
	if len(res.Summary.Blocked) != 2 {
		t.Errorf("Expected both input guardrails to block, got %d", len(res.Summary.Blocked))
	}

	out, err := p.RunStage(context.Background(), guardrails.StageOutput, guardrails.Context{Text: "key sk-abc123"})
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}
	if !out.Blocked || out.Summary.MaxSeverity() != guardrails.SeverityCritical {
		t.Errorf("Expected critical output block, got %+v", out.Summary.Blocked)
	}
}

// ==================== pii ====================

func TestPII(t *testing.T) {
	g, err := NewPII(PIIConfig{})
	if err != nil {
		t.Fatalf("NewPII failed: %v", err)
	}

	if v := run(t, g, guardrails.Context{Text: "nothing personal"}); v.TripwireTriggered {
		t.Errorf("Expected pass, got %q", v.Message)
	}

	v := run(t, g, guardrails.Context{Text: "write to a@b.io or c@d.io, ssn 123-45-6789"})
	if !v.TripwireTriggered {
		t.Fatal("Expected trip on personal data")
	}
	if v.Severity != guardrails.SeverityHigh {
		t.Errorf("Expected default severity high, got %s", v.Severity)
	}
	types, _ := v.Metadata["types"].([]string)
	if !slices.Equal(types, []string{"email", "ssn"}) {
		t.Errorf("Expected types [email ssn], got %v", v.Metadata["types"])
	}
	if v.Metadata["count"] != 3 {
		t.Errorf("Expected count 3, got %v", v.Metadata["count"])
	}
	if strings.Contains(v.Message, "a@b.io") || strings.Contains(v.Suggestion, "123-45-6789") {
		t.Error("Expected matched values to stay out of the verdict")
	}
}

func TestPII_Types(t *testing.T) {
	r := NewRegistry()
	g, err := r.Build(NamePII, map[string]any{"types": []any{"email"}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if v := run(t, g, guardrails.Context{Text: "ssn 123-45-6789"}); v.TripwireTriggered {
		t.Error("Expected unconfigured type to pass")
	}
	if v := run(t, g, guardrails.Context{Text: "mail a@b.io"}); !v.TripwireTriggered {
		t.Error("Expected email to trip")
	}
}

func TestPII_Redact(t *testing.T) {
	r := NewRegistry()
	g, err := r.Build(NamePII, map[string]any{"redact": true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	v := run(t, g, guardrails.Context{Text: "mail a@b.io now"})
	if !v.TripwireTriggered {
		t.Fatal("Expected email to trip")
	}
	if v.Metadata["redacted"] != "mail [EMAIL] now" {
		t.Errorf("Expected redacted text, got %v", v.Metadata["redacted"])
	}
}

// ==================== max-tokens ====================

func TestMaxTokens(t *testing.T) {
	g, err := NewMaxTokens(MaxTokensConfig{MaxTokens: 10})
	if err != nil {
		t.Fatalf("NewMaxTokens failed: %v", err)
	}

	tests := []struct {
		name       string
		in         guardrails.Context
		triggered  bool
		wantTokens int
		wantSource string
	}{
		{
			name:       "short text",
			in:         guardrails.Context{Stage: guardrails.StageOutput, Text: strings.Repeat("x", 40)},
			wantTokens: 10,
		},
		{
			name:       "long text",
			in:         guardrails.Context{Stage: guardrails.StageOutput, Text: strings.Repeat("x", 44)},
			triggered:  true,
			wantTokens: 11,
			wantSource: "estimated",
		},
		{
			name: "reported usage wins on output",
			in: guardrails.Context{
				Stage:    guardrails.StageOutput,
				Text:     "short",
				Response: &providers.CompletionResponse{Usage: providers.TokenUsage{CompletionTokens: 50}},
			},
			triggered:  true,
			wantTokens: 50,
			wantSource: "reported",
		},
		{
			name: "input counts the conversation",
			in: guardrails.Context{
				Stage: guardrails.StageInput,
				Text:  "hi",
				Request: &providers.CompletionRequest{Messages: []providers.Message{
					{Role: providers.RoleSystem, Content: strings.Repeat("s", 40)},
					{Role: providers.RoleUser, Content: "hi"},
				}},
			},
			triggered:  true,
			wantTokens: 3 + 2*4 + 10 + 1,
			wantSource: "estimated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := run(t, g, tt.in)
			if v.TripwireTriggered != tt.triggered {
				t.Fatalf("Expected triggered=%v, got %v (%s)", tt.triggered, v.TripwireTriggered, v.Message)
			}
			if v.Metadata["tokens"] != tt.wantTokens {
				t.Errorf("Expected %d tokens, got %v", tt.wantTokens, v.Metadata["tokens"])
			}
			if tt.triggered && v.Metadata["source"] != tt.wantSource {
				t.Errorf("Expected source %q, got %v", tt.wantSource, v.Metadata["source"])
			}
		})
	}
}

func TestMaxTokens_CustomRatio(t *testing.T) {
	r := NewRegistry()
	g, err := r.Build(NameMaxTokens, map[string]any{
		"max_tokens":      10,
		"chars_per_token": map[string]any{"tiny": 1.0},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	in := guardrails.Context{
		Stage:   guardrails.StageOutput,
		Text:    strings.Repeat("x", 20),
		Request: &providers.CompletionRequest{Model: "tiny-1"},
	}
	if v := run(t, g, in); !v.TripwireTriggered {
		t.Error("Expected 20 tokens at one char per token to trip")
	}
}

// ==================== rate-limit estimates ====================

func TestRateLimit_EstimatesMissingUsage(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	g, err := NewRateLimit(RateLimitConfig{TokensPerMinute: 20, Key: KeyGlobal}, clock.Now)
	if err != nil {
		t.Fatalf("NewRateLimit failed: %v", err)
	}

	input := guardrails.Context{Stage: guardrails.StageInput}
	output := guardrails.Context{Stage: guardrails.StageOutput, Text: strings.Repeat("x", 100)}

	if v := run(t, g, input); v.TripwireTriggered {
		t.Fatal("Expected first request to pass")
	}
	run(t, g, output)
	if v := run(t, g, input); !v.TripwireTriggered {
		t.Error("Expected the estimated 25 tokens to exhaust the budget")
	}
}

// ==================== token-budget ====================

func TestTokenBudget(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	g, err := NewTokenBudget(TokenBudgetConfig{Hourly: 100, AlertThreshold: 0.5}, clock.Now)
	if err != nil {
		t.Fatalf("NewTokenBudget failed: %v", err)
	}

	req := &providers.CompletionRequest{User: "alice"}
	input := guardrails.Context{Stage: guardrails.StageInput, Request: req}
	spend := func(n int) guardrails.Context {
		return guardrails.Context{
			Stage:    guardrails.StageOutput,
			Request:  req,
			Response: &providers.CompletionResponse{Usage: providers.TokenUsage{TotalTokens: n}},
		}
	}

	if v := run(t, g, input); v.TripwireTriggered || v.Metadata["budget_alert"] != nil {
		t.Fatalf("Expected a clean pass with no spend, got %+v", v)
	}

	run(t, g, spend(60))
	v := run(t, g, input)
	if v.TripwireTriggered {
		t.Fatal("Expected pass under budget")
	}
	if v.Metadata["budget_alert"] != true {
		t.Errorf("Expected budget_alert at 60%%, got %v", v.Metadata["budget_alert"])
	}

	run(t, g, spend(60))
	v = run(t, g, input)
	if !v.TripwireTriggered {
		t.Fatal("Expected trip over budget")
	}
	if v.Message != "hourly token budget exceeded" {
		t.Errorf("Expected hourly message, got %q", v.Message)
	}
	if v.Metadata["key"] != "user:alice" {
		t.Errorf("Expected key user:alice, got %v", v.Metadata["key"])
	}

	bob := guardrails.Context{Stage: guardrails.StageInput, Request: &providers.CompletionRequest{User: "bob"}}
	if v := run(t, g, bob); v.TripwireTriggered {
		t.Error("Expected a different user to pass")
	}

	clock.Advance(61 * time.Minute)
	if v := run(t, g, input); v.TripwireTriggered {
		t.Error("Expected budget to recover after the window")
	}
}

// chargeThenCheck loads src, runs the output stage spends times reporting
// perSpend tokens each, then runs the input stage once.
func chargeThenCheck(t *testing.T, src string, spends, perSpend int) *pipeline.StageResult {
	t.Helper()

	r := NewRegistry()
	cfg, err := pipeline.Load(r, src)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p, err := pipeline.New(cfg, r)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	res, err := p.RunStage(ctx, guardrails.StageInput, guardrails.Context{Text: "hi"})
	if err != nil {
		t.Fatalf("RunStage(input) failed: %v", err)
	}
	if res.Blocked {
		t.Fatal("Expected the first input to pass")
	}

	for i := 0; i < spends; i++ {
		out := guardrails.Context{
			Text:     "answer",
			Response: &providers.CompletionResponse{Usage: providers.TokenUsage{TotalTokens: perSpend}},
		}
		if _, err := p.RunStage(ctx, guardrails.StageOutput, out); err != nil {
			t.Fatalf("RunStage(output) failed: %v", err)
		}
	}

	res, err = p.RunStage(ctx, guardrails.StageInput, guardrails.Context{Text: "hi"})
	if err != nil {
		t.Fatalf("RunStage(input) failed: %v", err)
	}
	return res
}

func TestTokenBudget_ChargesAcrossPipelineStages(t *testing.T) {
	src := `{
		"version": 1,
		"input": {"version": 1, "guardrails": [
			{"name": "token-budget", "config": {"hourly": 10, "key": "global"}}
		]},
		"output": {"version": 1, "guardrails": [
			{"name": "token-budget", "config": {"hourly": 10, "key": "global"}}
		]}
	}`

	res := chargeThenCheck(t, src, 3, 100)
	if !res.Blocked {
		t.Fatal("Expected input to block after output spent 300 tokens against an hourly budget of 10")
	}
	if got := res.Summary.Blocked[0].Guardrail; got != NameTokenBudget {
		t.Errorf("Expected %s to block, got %q", NameTokenBudget, got)
	}
}

func TestRateLimit_TokensChargeAcrossPipelineStages(t *testing.T) {
	src := `{
		"version": 1,
		"input": {"version": 1, "guardrails": [
			{"name": "rate-limit", "config": {"tokens_per_minute": 50, "key": "global"}}
		]},
		"output": {"version": 1, "guardrails": [
			{"name": "rate-limit", "config": {"tokens_per_minute": 50, "key": "global"}}
		]}
	}`

	res := chargeThenCheck(t, src, 1, 100)
	if !res.Blocked {
		t.Fatal("Expected input to block after output spent 100 tokens against 50 per minute")
	}
	if got := res.Summary.Blocked[0].Guardrail; got != NameRateLimit {
		t.Errorf("Expected %s to block, got %q", NameRateLimit, got)
	}
}
