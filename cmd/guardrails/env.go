package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mercator-hq/guardrails/pkg/cli"
	"mercator-hq/guardrails/pkg/config"
	"mercator-hq/guardrails/pkg/telemetry/logging"
)

// environment is what every command starts from.
type environment struct {
	cfg    *config.Config
	logger *slog.Logger
}

// loadEnvironment loads the dotenv file, then the config file with
// environment overrides, then builds the logger. The default files may be
// absent; files named on the command line must exist.
func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	if err := loadDotEnv(envFile, flagChanged(cmd, "env-file")); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}

	cfg, err := loadConfig(cfgFile, flagChanged(cmd, "config"))
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, cmd.ErrOrStderr()))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return &environment{cfg: cfg, logger: logger}, nil
}

func loadDotEnv(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

func loadConfig(path string, required bool) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil && !required && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return config.LoadConfigWithEnvOverrides(path)
}

// flagChanged reports whether name was set on the command line. Commands
// built in tests have no persistent flags.
func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// commandContext returns the command's context, or Background for commands
// that were not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
