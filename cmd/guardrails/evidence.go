package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/guardrails/pkg/cli"
	"mercator-hq/guardrails/pkg/evidence"
	"mercator-hq/guardrails/pkg/evidence/export"
	"mercator-hq/guardrails/pkg/evidence/retention"
	"mercator-hq/guardrails/pkg/evidence/storage"
)

var evidenceFlags struct {
	since     time.Duration
	start     string
	end       string
	requestID string
	gate      string
	provider  string
	model     string
	user      string
	guardrail string
	blocked   string
	limit     int
	offset    int
	sort      string
	format    string
	output    string
}

var pruneFlags struct {
	days       int
	maxRecords int64
	archive    string
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Query and prune recorded gate decisions",
	Long: `Query and prune the evidence store.

Every input and output gate run of the middleware is recorded with the
verdict of each guardrail. The store is configured in the evidence section of
the config file.

Subcommands:
  query   - Query evidence records with filters
  prune   - Delete records past the retention policy`,
}

var evidenceQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query evidence records",
	Long: `Query evidence records with filters.

Time Filters:
  --since 24h                     records from the last 24 hours
  --start/--end (RFC3339)         explicit bounds

Examples:
  # Blocked output decisions of the last hour
  guardrails evidence query --since 1h --gate output --blocked true

  # Every decision that tripped a guardrail, as CSV
  guardrails evidence query --guardrail blocked-terms --format csv -o trips.csv

  # All attempts of one call
  guardrails evidence query --request-id 6f1c... --sort asc`,
	RunE: runEvidenceQuery,
}

var evidencePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete evidence past the retention policy",
	Long: `Delete records older than the retention period, then the oldest records
beyond the record cap. Flags override evidence.retention from the config.

Examples:
  guardrails evidence prune --days 30
  guardrails evidence prune --max-records 100000 --archive ./archive`,
	RunE: runEvidencePrune,
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceQueryCmd, evidencePruneCmd)

	f := evidenceQueryCmd.Flags()
	f.DurationVar(&evidenceFlags.since, "since", 0, "only records newer than this (e.g. 24h)")
	f.StringVar(&evidenceFlags.start, "start", "", "start time (RFC3339)")
	f.StringVar(&evidenceFlags.end, "end", "", "end time (RFC3339)")
	f.StringVar(&evidenceFlags.requestID, "request-id", "", "filter by request ID")
	f.StringVar(&evidenceFlags.gate, "gate", "", "filter by gate: input, output")
	f.StringVar(&evidenceFlags.provider, "provider", "", "filter by provider")
	f.StringVar(&evidenceFlags.model, "model", "", "filter by model")
	f.StringVar(&evidenceFlags.user, "user", "", "filter by user ID")
	f.StringVar(&evidenceFlags.guardrail, "guardrail", "", "filter by triggered guardrail")
	f.StringVar(&evidenceFlags.blocked, "blocked", "", "filter by outcome: true, false")
	f.IntVar(&evidenceFlags.limit, "limit", evidence.DefaultLimit, "max results")
	f.IntVar(&evidenceFlags.offset, "offset", 0, "pagination offset")
	f.StringVar(&evidenceFlags.sort, "sort", "desc", "sort by time: asc, desc")
	f.StringVar(&evidenceFlags.format, "format", "text", "output format: text, json, csv")
	f.StringVarP(&evidenceFlags.output, "output", "o", "", "output file (default: stdout)")

	p := evidencePruneCmd.Flags()
	p.IntVar(&pruneFlags.days, "days", -1, "retention period in days (default: from config)")
	p.Int64Var(&pruneFlags.maxRecords, "max-records", -1, "record cap (default: from config)")
	p.StringVar(&pruneFlags.archive, "archive", "", "archive pruned records as JSON under this directory")
}

// buildQuery turns the query flags into a validated evidence.Query.
func buildQuery(now time.Time) (*evidence.Query, error) {
	q := &evidence.Query{
		RequestID: evidenceFlags.requestID,
		Gate:      evidenceFlags.gate,
		Provider:  evidenceFlags.provider,
		Model:     evidenceFlags.model,
		UserID:    evidenceFlags.user,
		Guardrail: evidenceFlags.guardrail,
		Limit:     evidenceFlags.limit,
		Offset:    evidenceFlags.offset,
		SortOrder: evidenceFlags.sort,
	}

	if evidenceFlags.since > 0 {
		if evidenceFlags.start != "" {
			return nil, fmt.Errorf("--since and --start are mutually exclusive")
		}
		start := now.Add(-evidenceFlags.since)
		q.StartTime = &start
	}
	if evidenceFlags.start != "" {
		t, err := time.Parse(time.RFC3339, evidenceFlags.start)
		if err != nil {
			return nil, fmt.Errorf("invalid --start: %w", err)
		}
		q.StartTime = &t
	}
	if evidenceFlags.end != "" {
		t, err := time.Parse(time.RFC3339, evidenceFlags.end)
		if err != nil {
			return nil, fmt.Errorf("invalid --end: %w", err)
		}
		q.EndTime = &t
	}
	if evidenceFlags.blocked != "" {
		b, err := strconv.ParseBool(evidenceFlags.blocked)
		if err != nil {
			return nil, fmt.Errorf("invalid --blocked %q: want true or false", evidenceFlags.blocked)
		}
		q.Blocked = &b
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func openStore(env *environment) (evidence.Storage, error) {
	store, err := storage.New(&env.cfg.Evidence, env.logger)
	if err != nil {
		return nil, cli.NewConfigError("evidence", err.Error())
	}
	return store, nil
}

func runEvidenceQuery(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(evidenceFlags.format)
	if err != nil {
		return err
	}
	query, err := buildQuery(time.Now())
	if err != nil {
		return err
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(env)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := commandContext(cmd)
	records, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("evidence query", err)
	}

	out := cmd.OutOrStdout()
	if evidenceFlags.output != "" {
		f, err := os.Create(evidenceFlags.output)
		if err != nil {
			return cli.NewCommandError("evidence query", err)
		}
		defer f.Close()
		out = f
	}

	if format == cli.FormatText {
		return writeRecordTable(out, records)
	}
	exporter, err := export.New(string(format))
	if err != nil {
		return err
	}
	if err := exporter.Export(ctx, records, out); err != nil {
		return cli.NewCommandError("evidence query", err)
	}
	if evidenceFlags.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", len(records), evidenceFlags.output)
	}
	return nil
}

func writeRecordTable(w io.Writer, records []*evidence.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No evidence records found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREQUEST\tGATE\tATTEMPT\tMODE\tBLOCKED\tSEVERITY\tGUARDRAILS")
	for _, r := range records {
		blocked := strings.Join(r.BlockedNames(), ",")
		if blocked == "" {
			blocked = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%t\t%s\t%s\n",
			r.RecordedTime.Format(time.RFC3339),
			shortID(r.RequestID),
			r.Gate,
			r.Attempt,
			r.Mode,
			r.Blocked,
			dash(r.Severity),
			blocked,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d record(s)\n", len(records))
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return dash(id)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runEvidencePrune(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	policy := env.cfg.Evidence.Retention
	if pruneFlags.days >= 0 {
		policy.Days = pruneFlags.days
	}
	if pruneFlags.maxRecords >= 0 {
		policy.MaxRecords = pruneFlags.maxRecords
	}
	if pruneFlags.archive != "" {
		policy.ArchivePath = pruneFlags.archive
	}
	if policy.Days == 0 && policy.MaxRecords == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Retention is unlimited; nothing to prune.")
		return nil
	}

	store, err := openStore(env)
	if err != nil {
		return err
	}
	defer store.Close()

	pruner := retention.NewPruner(store, policy, retention.WithLogger(env.logger))
	deleted, err := pruner.Prune(commandContext(cmd))
	if err != nil {
		return cli.NewCommandError("evidence prune", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d record(s) (days=%d, max_records=%d)\n", deleted, policy.Days, policy.MaxRecords)
	return nil
}
