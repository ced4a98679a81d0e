// Package config provides configuration management for Mercator Guardrails.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("guardrails-config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("guardrails-config.yaml")
//
//  3. Without a file, defaults plus environment:
//     cfg := config.Default()
//
// # Environment Variable Overrides
//
// Environment variables use the prefix GUARDRAILS_ followed by SECTION_FIELD.
// Fields of the guardrails section drop the repeated section name:
//
//   - GUARDRAILS_MODE overrides guardrails.mode
//   - GUARDRAILS_RETRY_MAX_RETRIES overrides retry.max_retries
//   - GUARDRAILS_EVIDENCE_SQLITE_DRIVER overrides evidence.sqlite.driver
//   - GUARDRAILS_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (all field errors are collected and returned together)
//
// # Example Configuration
//
//	guardrails:
//	  pipeline_path: "guardrails.yaml"
//	  watch: true
//	  mode: "block"
//	retry:
//	  max_retries: 2
//	  strategy: "exponential"
//	  base_delay: "200ms"
//	  max_delay: "5s"
//	evidence:
//	  enabled: true
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/evidence.db"
//	    driver: "sqlite"
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
