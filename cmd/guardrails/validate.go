package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/guardrails/pkg/cli"
	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/pipeline"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate [pipeline-file]",
	Short: "Validate a guardrail pipeline file",
	Long: `Validate a pipeline file: its structure and versions, that every guardrail
is registered, and that every guardrail accepts its configuration.

All problems are reported at once.

Examples:
  guardrails validate guardrails.yaml
  guardrails validate --format json pipelines/strict.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// validation is the output of the validate command.
type validation struct {
	Path   string              `json:"path"`
	Valid  bool                `json:"valid"`
	Stages map[string][]string `json:"stages,omitempty"`

	Unresolved          []string `json:"unresolved,omitempty"`
	UnsupportedVersions []string `json:"unsupported_versions,omitempty"`
	Problems            []string `json:"problems,omitempty"`
}

// RenderText lists the resolved stages or every problem found.
func (v *validation) RenderText(w io.Writer) error {
	if v.Valid {
		fmt.Fprintf(w, "✓ %s is valid\n", v.Path)
		for _, stage := range pipeline.Stages {
			if names, ok := v.Stages[string(stage)]; ok {
				fmt.Fprintf(w, "  %s: %d guardrail(s) %v\n", stage, len(names), names)
			}
		}
		return nil
	}

	fmt.Fprintf(w, "✗ %s is invalid\n", v.Path)
	for _, name := range v.Unresolved {
		fmt.Fprintf(w, "  unknown guardrail %q\n", name)
	}
	for _, ver := range v.UnsupportedVersions {
		fmt.Fprintf(w, "  unsupported version %s\n", ver)
	}
	for _, p := range v.Problems {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return errors.New("validate does not support csv output")
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	path := env.cfg.Guardrails.PipelinePath
	if len(args) == 1 {
		path = args[0]
	}

	result := &validation{Path: path}
	p, loadErr := loadPipeline(env, path)
	if loadErr == nil {
		result.Valid = true
		result.Stages = make(map[string][]string)
		for _, stage := range pipeline.Stages {
			if sc := p.Config().Stage(stage); sc != nil {
				result.Stages[string(stage)] = sc.Names()
			}
		}
	} else {
		var cfgErr *guardrails.ConfigurationError
		if !errors.As(loadErr, &cfgErr) {
			return cli.NewCommandError("validate", loadErr)
		}
		result.Unresolved = cfgErr.Unresolved
		result.UnsupportedVersions = cfgErr.UnsupportedVersions
		result.Problems = cfgErr.Problems
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Valid {
		return &cli.ExitError{Code: cli.ExitFailure, Err: loadErr, Silent: true}
	}
	return nil
}
