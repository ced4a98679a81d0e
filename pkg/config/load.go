package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "GUARDRAILS_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention GUARDRAILS_SECTION_FIELD (e.g., GUARDRAILS_RETRY_MAX_RETRIES).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied. It is used when
// no configuration file is given.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Values that fail to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Guardrails overrides
	envString("GUARDRAILS_PIPELINE_PATH", &cfg.Guardrails.PipelinePath)
	envBool("GUARDRAILS_WATCH", &cfg.Guardrails.Watch)
	envDuration("GUARDRAILS_WATCH_DEBOUNCE", &cfg.Guardrails.WatchDebounce)
	envString("GUARDRAILS_MODE", &cfg.Guardrails.Mode)
	envDuration("GUARDRAILS_DEFAULT_TIMEOUT", &cfg.Guardrails.DefaultTimeout)

	// Retry overrides
	envInt("RETRY_MAX_RETRIES", &cfg.Retry.MaxRetries)
	envString("RETRY_STRATEGY", &cfg.Retry.Strategy)
	envDuration("RETRY_BASE_DELAY", &cfg.Retry.BaseDelay)
	envDuration("RETRY_MAX_DELAY", &cfg.Retry.MaxDelay)
	envFloat("RETRY_MULTIPLIER", &cfg.Retry.Multiplier)
	envFloat("RETRY_JITTER", &cfg.Retry.Jitter)

	// Evidence overrides
	envBool("EVIDENCE_ENABLED", &cfg.Evidence.Enabled)
	envString("EVIDENCE_BACKEND", &cfg.Evidence.Backend)
	envString("EVIDENCE_SQLITE_PATH", &cfg.Evidence.SQLite.Path)
	envString("EVIDENCE_SQLITE_DRIVER", &cfg.Evidence.SQLite.Driver)
	envInt("EVIDENCE_RETENTION_DAYS", &cfg.Evidence.Retention.Days)
	envString("EVIDENCE_RETENTION_PRUNE_SCHEDULE", &cfg.Evidence.Retention.PruneSchedule)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envFloat("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envString("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	envString("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)
	envBool("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
}

// lookup resolves a key to GUARDRAILS_<key>. Keys that already carry the
// prefix are used as is.
func lookup(key string) (string, bool) {
	name := key
	if len(key) < len(EnvPrefix) || key[:len(EnvPrefix)] != EnvPrefix {
		name = EnvPrefix + key
	}
	val := os.Getenv(name)
	return val, val != ""
}

func envString(key string, dst *string) {
	if val, ok := lookup(key); ok {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if val, ok := lookup(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if val, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val, ok := lookup(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
