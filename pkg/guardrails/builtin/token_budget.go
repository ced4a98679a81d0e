package builtin

import (
	"context"
	"fmt"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/limits/budget"
	"mercator-hq/guardrails/pkg/limits/ratelimit"
	"mercator-hq/guardrails/pkg/processing/tokens"
)

// TokenBudgetConfig configures the token-budget guardrail.
type TokenBudgetConfig struct {
	Common `yaml:",inline"`

	Hourly  int64 `yaml:"hourly"`
	Daily   int64 `yaml:"daily"`
	Monthly int64 `yaml:"monthly"`

	// AlertThreshold adds budget_alert metadata to passing verdicts once
	// this fraction of a window is used.
	AlertThreshold float64 `yaml:"alert_threshold"`

	// Key is "user" (default), "model" or "global", as for rate-limit.
	Key string `yaml:"key"`
}

// NewTokenBudget blocks requests once a key has spent its tokens for a
// rolling hour, day or 30-day month. Spend is charged on the output stage
// from reported usage, or an estimate when the provider reported none.
//
// Like rate-limit, spend lives as long as the guardrail and resets when
// the pipeline is reloaded.
func NewTokenBudget(cfg TokenBudgetConfig, clock ratelimit.Clock) (*guardrails.Guardrail, error) {
	if cfg.Hourly < 0 || cfg.Daily < 0 || cfg.Monthly < 0 {
		return nil, fmt.Errorf("budgets must not be negative")
	}
	if cfg.Hourly == 0 && cfg.Daily == 0 && cfg.Monthly == 0 {
		return nil, fmt.Errorf("hourly, daily or monthly is required")
	}
	if cfg.AlertThreshold < 0 || cfg.AlertThreshold > 1 {
		return nil, fmt.Errorf("alert_threshold must be between 0 and 1, got %v", cfg.AlertThreshold)
	}
	switch cfg.Key {
	case "":
		cfg.Key = KeyUser
	case KeyUser, KeyModel, KeyGlobal:
	default:
		return nil, fmt.Errorf("key must be %q, %q or %q, got %q", KeyUser, KeyModel, KeyGlobal, cfg.Key)
	}
	severity, err := cfg.severity(guardrails.SeverityMedium)
	if err != nil {
		return nil, err
	}

	trackers := budget.NewKeyed(budget.Config{
		Hourly:         cfg.Hourly,
		Daily:          cfg.Daily,
		Monthly:        cfg.Monthly,
		AlertThreshold: cfg.AlertThreshold,
	}, clock)
	estimator := tokens.NewSimpleEstimator(nil)

	check := func(ctx context.Context, in guardrails.Context) (guardrails.Verdict, error) {
		key := limitKey(cfg.Key, in)
		tracker := trackers.Get(key)

		if in.Stage == guardrails.StageOutput {
			tracker.Add(int64(usedTokens(estimator, in)))
			return guardrails.Pass(), nil
		}

		s := tracker.Check()
		if s.Allowed {
			v := guardrails.Pass()
			if s.AlertTriggered {
				v = v.WithMetadata("budget_alert", true).
					WithMetadata("used", s.Used).
					WithMetadata("limit", s.Limit)
			}
			return v, nil
		}
		return guardrails.Trip(severity, cfg.message(s.Reason)).
			WithMetadata("key", key).
			WithMetadata("used", s.Used).
			WithMetadata("limit", s.Limit).
			WithMetadata("reset", s.Reset).
			WithMetadata(guardrails.MetadataReason, "token budget exceeded"), nil
	}

	return guardrails.New(NameTokenBudget, check, cfg.options("Limits tokens spent per user, model or globally over rolling windows")...)
}

func tokenBudgetFactory(raw map[string]any) (*guardrails.Guardrail, error) {
	var cfg TokenBudgetConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	return NewTokenBudget(cfg, nil)
}
