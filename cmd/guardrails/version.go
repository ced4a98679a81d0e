package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"mercator-hq/guardrails/pkg/cli"
	"mercator-hq/guardrails/pkg/telemetry/health"
)

// Set with -ldflags "-X main.Version=... -X main.GitCommit=... -X main.BuildDate=...".
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		info := buildInfo(health.NewVersionInfo(Version, GitCommit, BuildDate))
		format := cli.FormatText
		if versionJSON {
			format = cli.FormatJSON
		}
		if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), info); err != nil {
			cmd.PrintErrln(err)
		}
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(versionCmd)
}

// buildInfo is the same payload served at /version.
type buildInfo health.VersionInfo

func (b buildInfo) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Mercator Guardrails %s\n  commit:   %s\n  built:    %s\n  go:       %s %s/%s\n",
		b.Version, b.Commit, b.BuildDate, b.GoVersion, runtime.GOOS, runtime.GOARCH)
	return err
}
