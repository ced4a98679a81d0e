package evidence

import (
	"context"
	"io"
	"time"
)

// Gates a record can describe.
const (
	GateInput  = "input"
	GateOutput = "output"
)

// Record is the audit trail of one gate decision: which guardrails ran on
// which attempt of which call, and what they decided.
type Record struct {
	// Identity
	ID        string `json:"id"`         // UUID v4
	RequestID string `json:"request_id"` // Shared by every record of one call

	// Decision
	Gate      string `json:"gate"`       // "input" or "output"
	Attempt   int    `json:"attempt"`    // 1-based retry attempt
	Mode      string `json:"mode"`       // "block" or "warn"
	Blocked   bool   `json:"blocked"`    // Any guardrail triggered
	Partial   bool   `json:"partial"`    // Output came from an interrupted stream
	Streaming bool   `json:"streaming"`  // Output came from a stream
	Severity  string `json:"severity"`   // Highest severity among blocked guardrails

	Guardrails []GuardrailRecord `json:"guardrails"`

	// Request
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	UserID      string `json:"user_id"`
	Messages    int    `json:"messages"`
	RequestHash string `json:"request_hash"` // SHA-256 of the request messages

	// Timing
	Duration     time.Duration `json:"duration"` // Wall-clock time of the stage
	RecordedTime time.Time     `json:"recorded_time"`
}

// GuardrailRecord is one verdict inside a Record. Guardrail metadata is not
// stored; it may contain matched content.
type GuardrailRecord struct {
	Name          string        `json:"name"`
	Triggered     bool          `json:"triggered"`
	Severity      string        `json:"severity,omitempty"`
	Message       string        `json:"message,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// BlockedNames returns the names of the guardrails that triggered.
func (r *Record) BlockedNames() []string {
	var names []string
	for _, g := range r.Guardrails {
		if g.Triggered {
			names = append(names, g.Name)
		}
	}
	return names
}

// Query defines filter parameters for querying evidence records.
type Query struct {
	// Time range on RecordedTime, both inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Filters
	RequestID string `json:"request_id,omitempty"`
	Gate      string `json:"gate,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Guardrail string `json:"guardrail,omitempty"` // Records where this guardrail triggered
	Blocked   *bool  `json:"blocked,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder on RecordedTime: "asc" or "desc" (default).
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage defines the interface for evidence storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a record.
	Store(ctx context.Context, record *Record) error

	// Query returns records matching the filters, newest first unless
	// SortOrder is "asc". Returns an empty slice if nothing matches.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching the filters. Pagination
	// is ignored.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the filters and returns how many
	// were removed. Pagination is ignored.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the storage backend.
	Close() error
}

// Exporter writes records in some output format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
