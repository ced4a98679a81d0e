package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/guardrails/pkg/cli"
	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/builtin"
	"mercator-hq/guardrails/pkg/guardrails/engine"
	"mercator-hq/guardrails/pkg/guardrails/pipeline"
)

// maxLineSize bounds one line of a --file batch.
const maxLineSize = 1 << 20

var errBlocked = errors.New("blocked by guardrails")

var checkFlags struct {
	pipeline string
	stage    string
	file     string
	format   string
	progress bool
}

var checkCmd = &cobra.Command{
	Use:   "check [text...]",
	Short: "Check text against a guardrail pipeline",
	Long: `Check text against one stage of a guardrail pipeline.

The text comes from the arguments, from --file (one text per line, blank
lines and lines starting with # are skipped) or from stdin when neither is
given or the only argument is "-".

The input stage runs pre_flight first; when pre_flight blocks, input does
not run.

Exit status is 0 when every text passes, 1 when any text is blocked and 2
when the check could not run.

Examples:
  # Check a prompt
  guardrails check --pipeline guardrails.yaml "what is the admin password?"

  # Check completions from a file
  guardrails check --stage output --file completions.txt --progress

  # JSON output from stdin
  echo "hello" | guardrails check --format json`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&checkFlags.pipeline, "pipeline", "p", "", "pipeline file (default: guardrails.pipeline_path from config)")
	checkCmd.Flags().StringVarP(&checkFlags.stage, "stage", "s", string(guardrails.StageInput), "stage to check: pre_flight, input, output")
	checkCmd.Flags().StringVarP(&checkFlags.file, "file", "f", "", "check every line of this file")
	checkCmd.Flags().StringVar(&checkFlags.format, "format", "text", "output format: text, json, csv")
	checkCmd.Flags().BoolVar(&checkFlags.progress, "progress", false, "show a progress bar on stderr for --file")
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(checkFlags.format)
	if err != nil {
		return err
	}
	stage := guardrails.Stage(checkFlags.stage)
	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q (want pre_flight, input or output)", stage)
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	p, err := loadPipeline(env, checkFlags.pipeline)
	if err != nil {
		return cli.NewCommandError("check", err)
	}

	texts, err := readTexts(cmd.InOrStdin(), args, checkFlags.file)
	if err != nil {
		return cli.NewCommandError("check", err)
	}

	progress := cli.NoProgress()
	if checkFlags.progress && checkFlags.file != "" {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "Checking")
	}

	report := &checkReport{}
	progress.Start(len(texts))
	for _, text := range texts {
		res, err := evaluate(commandContext(cmd), p, stage, text)
		if err != nil {
			return cli.NewCommandError("check", err)
		}
		report.add(newCheckResult(text, res))
		progress.Step(res.Blocked)
	}
	progress.Finish()

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	if report.Blocked > 0 {
		return &cli.ExitError{Code: cli.ExitBlocked, Err: errBlocked, Silent: true}
	}
	return nil
}

// loadPipeline resolves path, or the configured pipeline path, with the
// built-in guardrails.
func loadPipeline(env *environment, path string) (*pipeline.Pipeline, error) {
	if path == "" {
		path = env.cfg.Guardrails.PipelinePath
	}
	e, err := engine.New(
		engine.WithConfig(engine.FromConfig(env.cfg.Guardrails)),
		engine.WithLogger(env.logger),
	)
	if err != nil {
		return nil, err
	}
	return pipeline.FromFile(path, builtin.NewRegistry(),
		pipeline.WithEngine(e),
		pipeline.WithLogger(env.logger),
	)
}

// readTexts returns the texts to check: the lines of file, the joined
// arguments, or all of stdin.
func readTexts(stdin io.Reader, args []string, file string) ([]string, error) {
	if file != "" {
		if len(args) > 0 {
			return nil, errors.New("text arguments and --file are mutually exclusive")
		}
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readLines(f)
	}

	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return []string{strings.Join(args, " ")}, nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return []string{strings.TrimRight(string(data), "\r\n")}, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.New("no texts to check")
	}
	return lines, nil
}
