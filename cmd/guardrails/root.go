package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/guardrails/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "guardrails",
	Short: "Mercator Guardrails - policy checks for LLM requests and responses",
	Long: `Mercator Guardrails runs configurable guardrail pipelines over prompts and
completions and records every gate decision as evidence.

Pipelines list guardrails per stage (pre_flight, input, output) in YAML or
JSON. The same pipeline files drive the Go middleware, the check command and
the check API served by "guardrails serve".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil && !cli.Silent(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
