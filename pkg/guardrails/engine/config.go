package engine

import (
	"fmt"
	"time"

	"mercator-hq/guardrails/pkg/config"
)

// Config contains configuration for the execution engine.
type Config struct {
	// DefaultTimeout bounds guardrails built without their own timeout.
	// Zero leaves them unbounded.
	// Default: 0
	DefaultTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{}
}

// FromConfig builds an engine configuration from the guardrails section of
// the application configuration.
func FromConfig(cfg config.GuardrailsConfig) *Config {
	return &Config{DefaultTimeout: cfg.DefaultTimeout}
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("default timeout must not be negative, got %v", c.DefaultTimeout)
	}
	return nil
}
