// Package sqlite provides the SQLite implementation of the coordination
// memory storage interfaces. It is the default backend for single-machine
// deployments; all producer processes share one database file in WAL mode.
package sqlite

// Schema contains the SQL statements to create the database schema.
// Mirrored by migrations/sqlite/000001_coordination_memory.up.sql for
// deployments that prefer file-based migrations.
const Schema = `
-- Memory records: one fact recorded by a producer.
CREATE TABLE IF NOT EXISTS memory_records (
    id TEXT PRIMARY KEY,
    producer TEXT NOT NULL,
    event_kind TEXT NOT NULL,
    summary TEXT NOT NULL,

    -- Structured payloads (JSON)
    context TEXT,
    findings TEXT,

    -- Entity references, one column per kind; exact-match membership only
    email_thread_id TEXT,
    task_id TEXT,
    delegation_id TEXT,
    run_id TEXT,

    -- Provenance (write-once)
    produced_by_model TEXT,
    confidence INTEGER,
    tokens_used INTEGER,

    -- created_at is immutable and is the sole basis for windowed queries
    created_at TIMESTAMP NOT NULL,

    -- Resolution lifecycle: active -> resolved, one way
    resolution_state TEXT NOT NULL DEFAULT 'active',
    resolved_at TIMESTAMP,
    resolution_reason TEXT,

    -- Append-only audit trail (JSON array of {timestamp, note, actor})
    annotations TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_records_created_at ON memory_records(created_at);
CREATE INDEX IF NOT EXISTS idx_records_state ON memory_records(resolution_state);
CREATE INDEX IF NOT EXISTS idx_records_producer ON memory_records(producer);
CREATE INDEX IF NOT EXISTS idx_records_event_kind ON memory_records(event_kind);
CREATE INDEX IF NOT EXISTS idx_records_email_thread ON memory_records(email_thread_id);
CREATE INDEX IF NOT EXISTS idx_records_task ON memory_records(task_id);
CREATE INDEX IF NOT EXISTS idx_records_delegation ON memory_records(delegation_id);
CREATE INDEX IF NOT EXISTS idx_records_run ON memory_records(run_id);

-- Coordination runs: batch-job envelope around a group of records.
CREATE TABLE IF NOT EXISTS coordination_runs (
    id TEXT PRIMARY KEY,
    producer TEXT NOT NULL,
    run_kind TEXT NOT NULL,
    model TEXT,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    items_processed INTEGER NOT NULL DEFAULT 0,
    outcome_summary TEXT,
    findings TEXT,
    total_tokens INTEGER,
    status TEXT NOT NULL DEFAULT 'running',
    error_detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON coordination_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON coordination_runs(status);
`
