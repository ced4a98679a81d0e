package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the evidence tables. Times are stored as Unix nanoseconds so
// both drivers compare them identically.
const Schema = `
CREATE TABLE IF NOT EXISTS gate_evidence (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,

    -- Decision
    gate TEXT NOT NULL,
    attempt INTEGER NOT NULL,
    mode TEXT NOT NULL,
    blocked BOOLEAN NOT NULL,
    partial BOOLEAN NOT NULL,
    streaming BOOLEAN NOT NULL,
    severity TEXT,
    guardrails TEXT NOT NULL,
    blocked_guardrails TEXT NOT NULL,

    -- Request
    provider TEXT,
    model TEXT,
    user_id TEXT,
    messages INTEGER,
    request_hash TEXT,

    -- Timing
    duration_ns INTEGER NOT NULL,
    recorded_time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gate_evidence_recorded_time ON gate_evidence(recorded_time);
CREATE INDEX IF NOT EXISTS idx_gate_evidence_request_id ON gate_evidence(request_id);
CREATE INDEX IF NOT EXISTS idx_gate_evidence_user_id ON gate_evidence(user_id);
CREATE INDEX IF NOT EXISTS idx_gate_evidence_model ON gate_evidence(model);
CREATE INDEX IF NOT EXISTS idx_gate_evidence_blocked ON gate_evidence(blocked);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const columns = `id, request_id, gate, attempt, mode, blocked, partial, streaming, severity,
guardrails, blocked_guardrails, provider, model, user_id, messages, request_hash,
duration_ns, recorded_time`

const insertRecord = `INSERT INTO gate_evidence (` + columns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
