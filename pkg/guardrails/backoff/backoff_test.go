package backoff

import (
	"math"
	"strings"
	"testing"
	"time"

	"mercator-hq/guardrails/pkg/config"
)

func TestFixed(t *testing.T) {
	b := Fixed(150 * time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := b(attempt); got != 150*time.Millisecond {
			t.Errorf("attempt %d: expected 150ms, got %v", attempt, got)
		}
	}
}

func TestLinear(t *testing.T) {
	b := Linear(100*time.Millisecond, WithMax(350*time.Millisecond))

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{4, 350 * time.Millisecond},
		{10, 350 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b(tt.attempt); got != tt.want {
			t.Errorf("Linear(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential(t *testing.T) {
	b := Exponential(100 * time.Millisecond)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b(tt.attempt); got != tt.want {
			t.Errorf("Exponential(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	tripled := Exponential(10*time.Millisecond, WithMultiplier(3))
	if got := tripled(3); got != 90*time.Millisecond {
		t.Errorf("Expected 90ms with multiplier 3, got %v", got)
	}
}

func TestExponentialNeverExceedsMax(t *testing.T) {
	maxDelay := 5 * time.Second
	b := Exponential(100*time.Millisecond, WithMax(maxDelay))
	for attempt := 1; attempt <= 200; attempt++ {
		if got := b(attempt); got > maxDelay || got < 0 {
			t.Fatalf("attempt %d: delay %v outside [0, %v]", attempt, got, maxDelay)
		}
	}
}

func TestUncappedSaturates(t *testing.T) {
	tests := []struct {
		name string
		b    Func
	}{
		{"exponential", Exponential(100 * time.Millisecond)},
		{"exponential jitter high", Exponential(100*time.Millisecond, WithJitter(1), WithRand(func() float64 { return 0.999 }))},
		{"exponential jitter low", Exponential(100*time.Millisecond, WithJitter(1), WithRand(func() float64 { return 0 }))},
		{"linear", Linear(time.Duration(math.MaxInt64))},
		{"fixed jitter", Fixed(time.Duration(math.MaxInt64), WithJitter(1), WithRand(func() float64 { return 0.999 }))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := time.Duration(0)
			for _, attempt := range []int{1, 10, 37, 40, 64, 100, 1000} {
				got := tt.b(attempt)
				if got < 0 {
					t.Fatalf("attempt %d: expected non-negative delay, got %v", attempt, got)
				}
				if got < prev && !strings.Contains(tt.name, "jitter") {
					t.Fatalf("attempt %d: expected delay >= %v, got %v", attempt, prev, got)
				}
				prev = got
			}
		})
	}

	if got := Exponential(100 * time.Millisecond)(100); got != time.Duration(math.MaxInt64) {
		t.Errorf("Expected saturation at %v, got %v", time.Duration(math.MaxInt64), got)
	}
}

func TestJitter(t *testing.T) {
	tests := []struct {
		name string
		r    float64
		want time.Duration
	}{
		// 1000 + 1000*0.5*r - 250
		{"low end", 0, 750 * time.Millisecond},
		{"centre", 0.5, 1000 * time.Millisecond},
		{"upper half", 0.75, 1125 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Fixed(time.Second, WithJitter(0.5), WithRand(func() float64 { return tt.r }))
			if got := b(1); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestJitterAppliedAfterCap(t *testing.T) {
	b := Exponential(time.Second, WithMax(2*time.Second), WithJitter(1), WithRand(func() float64 { return 0 }))
	// capped = 2s, 2s - 2s*1/2 = 1s
	if got := b(5); got != time.Second {
		t.Errorf("Expected 1s, got %v", got)
	}
}

func TestJitterBounds(t *testing.T) {
	b := Fixed(100*time.Millisecond, WithJitter(0.4))
	for i := 0; i < 1000; i++ {
		got := b(1)
		if got < 79*time.Millisecond || got > 121*time.Millisecond {
			t.Fatalf("Jittered delay %v outside [79ms, 121ms]", got)
		}
	}
}

func TestComposite(t *testing.T) {
	b := Composite(
		Step{MaxAttempts: 2, Backoff: Fixed(100 * time.Millisecond)},
		Step{MaxAttempts: 0, Backoff: Exponential(200 * time.Millisecond)},
	)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1600 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b(tt.attempt); got != tt.want {
			t.Errorf("Composite(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestCompositeSmallestMatchingStep(t *testing.T) {
	// Steps listed out of order; the tightest bound covering the attempt wins.
	b := Composite(
		Step{MaxAttempts: 5, Backoff: Fixed(500 * time.Millisecond)},
		Step{MaxAttempts: 1, Backoff: Fixed(10 * time.Millisecond)},
	)
	if got := b(1); got != 10*time.Millisecond {
		t.Errorf("attempt 1: expected 10ms, got %v", got)
	}
	if got := b(3); got != 500*time.Millisecond {
		t.Errorf("attempt 3: expected 500ms, got %v", got)
	}
}

func TestCompositeFallback(t *testing.T) {
	b := Composite(
		Step{MaxAttempts: 1, Backoff: Fixed(10 * time.Millisecond)},
		Step{MaxAttempts: 2, Backoff: Fixed(20 * time.Millisecond)},
	)
	if got := b(7); got != 20*time.Millisecond {
		t.Errorf("Expected fallback to last step (20ms), got %v", got)
	}

	if got := Composite()(3); got != 0 {
		t.Errorf("Expected 0 for empty composite, got %v", got)
	}
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.RetryConfig
		attempt int
		want    time.Duration
		wantErr bool
	}{
		{
			name:    "fixed",
			cfg:     config.RetryConfig{Strategy: "fixed", BaseDelay: 50 * time.Millisecond},
			attempt: 4,
			want:    50 * time.Millisecond,
		},
		{
			name:    "linear capped",
			cfg:     config.RetryConfig{Strategy: "linear", BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond},
			attempt: 3,
			want:    250 * time.Millisecond,
		},
		{
			name:    "exponential default strategy",
			cfg:     config.RetryConfig{BaseDelay: 100 * time.Millisecond, Multiplier: 2},
			attempt: 3,
			want:    400 * time.Millisecond,
		},
		{
			name:    "unknown",
			cfg:     config.RetryConfig{Strategy: "fibonacci"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := FromConfig(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := b(tt.attempt); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
