/*
Package cli provides the helpers shared by the guardrails command: typed
command errors with exit codes, output formatters, a progress reporter for
batch checks and signal handling.

Output Formatting:

Results are written as text, JSON or CSV. Values rendered as text implement
TextRenderer; values rendered as CSV implement Tabular:

	format, err := cli.ParseFormat(flags.format)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Exit Codes:

A command that wants a specific exit status returns an *ExitError. ExitCode
maps any error to the status the process should exit with:

	if result.Blocked {
		return cli.NewExitError(cli.ExitBlocked, errBlocked)
	}

Signal Handling:

	ctx, stop := cli.NotifyContext(context.Background())
	defer stop()
*/
package cli
