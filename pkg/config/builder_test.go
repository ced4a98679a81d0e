package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with defaults applied.
// The resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	var cfg Config
	ApplyDefaults(&cfg)
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithMode sets the blocking mode.
func (b *ConfigBuilder) WithMode(mode string) *ConfigBuilder {
	b.cfg.Guardrails.Mode = mode
	return b
}

// WithRetry sets the retry policy.
func (b *ConfigBuilder) WithRetry(maxRetries int, strategy string, base time.Duration) *ConfigBuilder {
	b.cfg.Retry.MaxRetries = maxRetries
	b.cfg.Retry.Strategy = strategy
	b.cfg.Retry.BaseDelay = base
	return b
}

// WithEvidence enables evidence on the given backend.
func (b *ConfigBuilder) WithEvidence(backend string) *ConfigBuilder {
	b.cfg.Evidence.Enabled = true
	b.cfg.Evidence.Backend = backend
	return b
}

// MinimalConfig returns the smallest valid configuration.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}
