package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/guardrails/pkg/evidence"
)

// CSVExporter writes one row per record. Guardrail verdicts are flattened to
// the list of triggered guardrail names.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"id", "request_id", "recorded_time", "gate", "attempt", "mode",
	"blocked", "severity", "blocked_guardrails", "guardrails_run",
	"partial", "streaming", "provider", "model", "user_id", "messages",
	"request_hash", "duration_ms",
}

// Export writes records to w.
func (e *CSVExporter) Export(ctx context.Context, records []*evidence.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
		if err := writer.Write(row(r)); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(records), err)
	}
	return nil
}

func row(r *evidence.Record) []string {
	return []string{
		r.ID,
		r.RequestID,
		r.RecordedTime.Format(time.RFC3339Nano),
		r.Gate,
		strconv.Itoa(r.Attempt),
		r.Mode,
		strconv.FormatBool(r.Blocked),
		r.Severity,
		strings.Join(r.BlockedNames(), ";"),
		strconv.Itoa(len(r.Guardrails)),
		strconv.FormatBool(r.Partial),
		strconv.FormatBool(r.Streaming),
		r.Provider,
		r.Model,
		r.UserID,
		strconv.Itoa(r.Messages),
		r.RequestHash,
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
	}
}
