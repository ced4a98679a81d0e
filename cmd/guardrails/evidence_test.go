package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"mercator-hq/guardrails/pkg/evidence"
)

func resetEvidenceFlags(t *testing.T) {
	t.Helper()
	prevQuery, prevPrune := evidenceFlags, pruneFlags
	evidenceFlags.since = 0
	evidenceFlags.start, evidenceFlags.end = "", ""
	evidenceFlags.requestID, evidenceFlags.gate, evidenceFlags.provider = "", "", ""
	evidenceFlags.model, evidenceFlags.user, evidenceFlags.guardrail = "", "", ""
	evidenceFlags.blocked = ""
	evidenceFlags.limit, evidenceFlags.offset = evidence.DefaultLimit, 0
	evidenceFlags.sort, evidenceFlags.format, evidenceFlags.output = "desc", "text", ""
	pruneFlags.days, pruneFlags.maxRecords, pruneFlags.archive = -1, -1, ""
	t.Cleanup(func() { evidenceFlags, pruneFlags = prevQuery, prevPrune })
}

// ==== Query flags ====

func TestBuildQuery(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		set     func()
		check   func(t *testing.T, q *evidence.Query)
		wantErr bool
	}{
		{
			name: "defaults",
			set:  func() {},
			check: func(t *testing.T, q *evidence.Query) {
				if q.Limit != evidence.DefaultLimit || q.SortOrder != "desc" {
					t.Errorf("Expected default limit and desc, got %d %q", q.Limit, q.SortOrder)
				}
				if q.StartTime != nil || q.Blocked != nil {
					t.Error("Expected no time or outcome filter")
				}
			},
		},
		{
			name: "since",
			set:  func() { evidenceFlags.since = time.Hour },
			check: func(t *testing.T, q *evidence.Query) {
				if q.StartTime == nil || !q.StartTime.Equal(now.Add(-time.Hour)) {
					t.Errorf("Expected start one hour ago, got %v", q.StartTime)
				}
			},
		},
		{
			name: "start and end",
			set: func() {
				evidenceFlags.start = "2025-05-01T00:00:00Z"
				evidenceFlags.end = "2025-05-02T00:00:00Z"
			},
			check: func(t *testing.T, q *evidence.Query) {
				if q.StartTime == nil || q.EndTime == nil || q.EndTime.Sub(*q.StartTime) != 24*time.Hour {
					t.Errorf("Expected a one day window, got %v to %v", q.StartTime, q.EndTime)
				}
			},
		},
		{
			name: "filters",
			set: func() {
				evidenceFlags.gate = "output"
				evidenceFlags.guardrail = "blocked-terms"
				evidenceFlags.blocked = "true"
				evidenceFlags.sort = "ASC"
			},
			check: func(t *testing.T, q *evidence.Query) {
				if q.Gate != "output" || q.Guardrail != "blocked-terms" {
					t.Errorf("Expected gate and guardrail filters, got %q %q", q.Gate, q.Guardrail)
				}
				if q.Blocked == nil || !*q.Blocked {
					t.Error("Expected blocked=true filter")
				}
				if q.SortOrder != "asc" {
					t.Errorf("Expected sort asc, got %q", q.SortOrder)
				}
			},
		},
		{name: "since with start", set: func() { evidenceFlags.since = time.Hour; evidenceFlags.start = "2025-05-01T00:00:00Z" }, wantErr: true},
		{name: "bad start", set: func() { evidenceFlags.start = "yesterday" }, wantErr: true},
		{name: "bad end", set: func() { evidenceFlags.end = "2025-13-01" }, wantErr: true},
		{name: "bad blocked", set: func() { evidenceFlags.blocked = "maybe" }, wantErr: true},
		{name: "bad gate", set: func() { evidenceFlags.gate = "middle" }, wantErr: true},
		{name: "negative offset", set: func() { evidenceFlags.offset = -1 }, wantErr: true},
		{name: "limit too large", set: func() { evidenceFlags.limit = evidence.MaxLimit + 1 }, wantErr: true},
		{
			name: "start after end",
			set: func() {
				evidenceFlags.start = "2025-05-02T00:00:00Z"
				evidenceFlags.end = "2025-05-01T00:00:00Z"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetEvidenceFlags(t)
			tt.set()

			q, err := buildQuery(now)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			tt.check(t, q)
		})
	}
}

// ==== Query ====

func TestRunEvidenceQuery_Empty(t *testing.T) {
	resetEvidenceFlags(t)
	cmd, out, _ := newTestCommand(t, "")

	if err := runEvidenceQuery(cmd, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "No evidence records found.") {
		t.Errorf("Expected empty result message, got:\n%s", out.String())
	}
}

func TestRunEvidenceQuery_BadFormat(t *testing.T) {
	resetEvidenceFlags(t)
	evidenceFlags.format = "xml"
	cmd, _, _ := newTestCommand(t, "")

	if err := runEvidenceQuery(cmd, nil); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestWriteRecordTable(t *testing.T) {
	records := []*evidence.Record{
		{
			ID:           "r1",
			RequestID:    "0123456789abcdef",
			RecordedTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Gate:         evidence.GateOutput,
			Attempt:      2,
			Mode:         "block",
			Blocked:      true,
			Severity:     "high",
			Guardrails: []evidence.GuardrailRecord{
				{Name: "blocked-terms", Triggered: true, Severity: "high"},
				{Name: "max-length"},
			},
		},
		{
			ID:           "r2",
			RecordedTime: time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC),
			Gate:         evidence.GateInput,
			Attempt:      1,
			Mode:         "warn",
		},
	}

	var buf bytes.Buffer
	if err := writeRecordTable(&buf, records); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	out := buf.String()

	for _, want := range []string{"TIME", "01234567", "output", "blocked-terms", "2025-06-01T12:00:00Z", "2 record(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected table to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Error("Expected request id to be shortened")
	}
	if strings.Contains(out, "max-length") {
		t.Error("Expected passing guardrails to be omitted")
	}
}

// ==== Prune ====

func TestRunEvidencePrune(t *testing.T) {
	tests := []struct {
		name       string
		days       int
		maxRecords int64
		expected   string
	}{
		{name: "config policy", days: -1, maxRecords: -1, expected: "Pruned 0 record(s) (days=30, max_records=0)"},
		{name: "flag override", days: 7, maxRecords: 100, expected: "Pruned 0 record(s) (days=7, max_records=100)"},
		{name: "unlimited", days: 0, maxRecords: 0, expected: "Retention is unlimited; nothing to prune."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetEvidenceFlags(t)
			pruneFlags.days = tt.days
			pruneFlags.maxRecords = tt.maxRecords
			cmd, out, _ := newTestCommand(t, "")

			if err := runEvidencePrune(cmd, nil); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if !strings.Contains(out.String(), tt.expected) {
				t.Errorf("Expected %q, got:\n%s", tt.expected, out.String())
			}
		})
	}
}
