package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mercator-hq/guardrails/pkg/config"
	"mercator-hq/guardrails/pkg/evidence"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

const backendSQLite = "sqlite"

// SQLiteStorage implements evidence.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config config.SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database at cfg.Path, enables WAL mode when
// configured and creates the schema. Zero fields take the package defaults.
func NewSQLiteStorage(cfg config.SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if cfg.Path == "" {
		return nil, evidence.NewStorageError(backendSQLite, "open", errors.New("path is required"))
	}
	if cfg.Driver == "" {
		cfg.Driver = config.DefaultEvidenceSQLiteDriver
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = config.DefaultEvidenceSQLiteMaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = config.DefaultEvidenceSQLiteMaxIdleConns
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = config.DefaultEvidenceSQLiteBusyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "evidence.storage.sqlite")

	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, evidence.NewStorageError(backendSQLite, "open", err)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, evidence.NewStorageError(backendSQLite, "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &SQLiteStorage{db: db, config: cfg, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", cfg.WALMode,
	)
	return s, nil
}

// dataSourceName puts the busy timeout in the DSN so every pooled connection
// gets it. The two drivers spell the parameter differently.
func dataSourceName(cfg config.SQLiteConfig) (string, error) {
	ms := cfg.BusyTimeout.Milliseconds()
	switch cfg.Driver {
	case DriverModernc:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", cfg.Path, ms), nil
	case DriverMattn:
		return fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.Path, ms), nil
	default:
		return "", fmt.Errorf("unsupported driver %q (want %q or %q)", cfg.Driver, DriverModernc, DriverMattn)
	}
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return evidence.NewStorageError(backendSQLite, "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return evidence.NewStorageError(backendSQLite, "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return evidence.NewStorageError(backendSQLite, "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return evidence.NewStorageError(backendSQLite, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return evidence.NewStorageError(backendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Store persists a record.
func (s *SQLiteStorage) Store(ctx context.Context, record *evidence.Record) error {
	guardrails, err := json.Marshal(record.Guardrails)
	if err != nil {
		return evidence.NewStorageError(backendSQLite, "store", err)
	}
	blocked, err := json.Marshal(record.BlockedNames())
	if err != nil {
		return evidence.NewStorageError(backendSQLite, "store", err)
	}

	_, err = s.db.ExecContext(ctx, insertRecord,
		record.ID, record.RequestID,
		record.Gate, record.Attempt, record.Mode, record.Blocked, record.Partial, record.Streaming, nullString(record.Severity),
		string(guardrails), string(blocked),
		nullString(record.Provider), nullString(record.Model), nullString(record.UserID), record.Messages, nullString(record.RequestHash),
		int64(record.Duration), record.RecordedTime.UnixNano(),
	)
	if err != nil {
		return evidence.NewStorageError(backendSQLite, "store", err)
	}
	return nil
}

// Query returns records matching the query.
func (s *SQLiteStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Record, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhereClause(query)
	stmt := "SELECT " + columns + " FROM gate_evidence" + where
	stmt += fmt.Sprintf(" ORDER BY recorded_time %s, id %s", strings.ToUpper(query.SortOrder), strings.ToUpper(query.SortOrder))
	stmt += fmt.Sprintf(" LIMIT %d OFFSET %d", query.Limit, query.Offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, evidence.NewStorageError(backendSQLite, "query", err)
	}
	defer rows.Close()

	records := []*evidence.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, evidence.NewStorageError(backendSQLite, "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError(backendSQLite, "query", err)
	}
	return records, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	where, args := buildWhereClause(query)

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM gate_evidence"+where, args...).Scan(&count); err != nil {
		return 0, evidence.NewStorageError(backendSQLite, "count", err)
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	where, args := buildWhereClause(query)

	result, err := s.db.ExecContext(ctx, "DELETE FROM gate_evidence"+where, args...)
	if err != nil {
		return 0, evidence.NewStorageError(backendSQLite, "delete", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, evidence.NewStorageError(backendSQLite, "delete", err)
	}
	return n, nil
}

// DeleteOldest removes all but the newest keep records.
func (s *SQLiteStorage) DeleteOldest(ctx context.Context, keep int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM gate_evidence WHERE id NOT IN (
		SELECT id FROM gate_evidence ORDER BY recorded_time DESC, id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, evidence.NewStorageError(backendSQLite, "delete_oldest", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, evidence.NewStorageError(backendSQLite, "delete_oldest", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return evidence.NewStorageError(backendSQLite, "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

// buildWhereClause returns " WHERE ..." (or "") and its arguments.
func buildWhereClause(query *evidence.Query) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		conditions = append(conditions, cond)
		args = append(args, arg)
	}

	if query.StartTime != nil {
		add("recorded_time >= ?", query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		add("recorded_time <= ?", query.EndTime.UnixNano())
	}
	if query.RequestID != "" {
		add("request_id = ?", query.RequestID)
	}
	if query.Gate != "" {
		add("gate = ?", query.Gate)
	}
	if query.Provider != "" {
		add("provider = ?", query.Provider)
	}
	if query.Model != "" {
		add("model = ?", query.Model)
	}
	if query.UserID != "" {
		add("user_id = ?", query.UserID)
	}
	if query.Blocked != nil {
		add("blocked = ?", *query.Blocked)
	}
	if query.Guardrail != "" {
		// blocked_guardrails is a JSON array of strings.
		quoted, _ := json.Marshal(query.Guardrail)
		add(`blocked_guardrails LIKE ? ESCAPE '\'`, "%"+escapeLike(string(quoted))+"%")
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanRecord(rows *sql.Rows) (*evidence.Record, error) {
	var (
		r                                 evidence.Record
		severity, provider, model, userID sql.NullString
		requestHash                       sql.NullString
		guardrails, blocked               string
		messages                          sql.NullInt64
		durationNs, recordedNs            int64
	)

	err := rows.Scan(
		&r.ID, &r.RequestID,
		&r.Gate, &r.Attempt, &r.Mode, &r.Blocked, &r.Partial, &r.Streaming, &severity,
		&guardrails, &blocked,
		&provider, &model, &userID, &messages, &requestHash,
		&durationNs, &recordedNs,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(guardrails), &r.Guardrails); err != nil {
		return nil, fmt.Errorf("decode guardrails of %s: %w", r.ID, err)
	}
	r.Severity = severity.String
	r.Provider = provider.String
	r.Model = model.String
	r.UserID = userID.String
	r.Messages = int(messages.Int64)
	r.RequestHash = requestHash.String
	r.Duration = time.Duration(durationNs)
	r.RecordedTime = time.Unix(0, recordedNs).UTC()
	return &r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
