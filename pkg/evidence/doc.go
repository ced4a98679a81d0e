// Package evidence records gate decisions for audit.
//
// Every time the middleware runs a gate (input or output, once per retry
// attempt) it can hand a Record to a recorder. A Record carries the verdict
// of every guardrail that ran, the call it belonged to, and a SHA-256 hash of
// the request messages instead of the messages themselves.
//
// # Packages
//
//   - storage: in-memory and SQLite backends implementing Storage
//   - recorder: asynchronous, non-blocking writer used by the middleware
//   - retention: age and count based pruning on a cron schedule
//   - export: JSON and CSV writers for the CLI
//
// # Querying
//
//	blocked := true
//	records, err := store.Query(ctx, &evidence.Query{
//	    Gate:    evidence.GateOutput,
//	    Blocked: &blocked,
//	    Limit:   50,
//	})
//
// Query.Validate fills in defaults (limit 100, newest first) and rejects
// malformed filters; backends call it before running a query.
package evidence
