package evidence

import "fmt"

// StorageError is a failed backend operation such as "open", "store" or
// "delete". Backend is "memory" or "sqlite".
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("evidence: %s backend: %s: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// QueryError is returned by Query.Validate.
type QueryError struct {
	Query *Query
	Cause error
}

func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{Query: query, Cause: cause}
}

func (e *QueryError) Error() string { return "evidence: bad query: " + e.Cause.Error() }

func (e *QueryError) Unwrap() error { return e.Cause }

// RecorderError reports a decision that was dropped before reaching storage.
type RecorderError struct {
	RecordID string
	Cause    error
}

func NewRecorderError(recordID string, cause error) *RecorderError {
	return &RecorderError{RecordID: recordID, Cause: cause}
}

func (e *RecorderError) Error() string {
	if e.RecordID == "" {
		return "evidence: recorder: " + e.Cause.Error()
	}
	return fmt.Sprintf("evidence: recorder: dropped %s: %v", e.RecordID, e.Cause)
}

func (e *RecorderError) Unwrap() error { return e.Cause }

// RetentionError is a pruning run that stopped early.
type RetentionError struct {
	RetentionDays int
	Cause         error
}

func NewRetentionError(retentionDays int, cause error) *RetentionError {
	return &RetentionError{RetentionDays: retentionDays, Cause: cause}
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("evidence: prune older than %dd: %v", e.RetentionDays, e.Cause)
}

func (e *RetentionError) Unwrap() error { return e.Cause }

// ExportError is a failed write of Format output.
type ExportError struct {
	Format      string
	RecordCount int
	Cause       error
}

func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{Format: format, RecordCount: recordCount, Cause: cause}
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("evidence: export %d records as %s: %v", e.RecordCount, e.Format, e.Cause)
}

func (e *ExportError) Unwrap() error { return e.Cause }
