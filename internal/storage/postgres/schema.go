// Package postgres provides a PostgreSQL implementation of storage interfaces.
package postgres

// Schema contains the SQL statements to create the coordination memory
// schema for PostgreSQL. All statements are idempotent.
const Schema = `
-- Memory records: one append-only row per agent observation or action,
-- with in-place resolution state.
CREATE TABLE IF NOT EXISTS memory_records (
    id TEXT PRIMARY KEY,
    producer TEXT NOT NULL,
    event_kind TEXT NOT NULL,
    summary TEXT NOT NULL,

    -- Structured payloads
    context JSONB,
    findings JSONB,

    -- Entity references (one column per ref kind, exact-match joins)
    email_thread_id TEXT,
    task_id TEXT,
    delegation_id TEXT,
    run_id TEXT,

    -- Provenance
    produced_by_model TEXT,
    confidence INTEGER,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,

    -- Resolution lifecycle
    resolution_state TEXT NOT NULL DEFAULT 'active',
    resolved_at TIMESTAMP,
    resolution_reason TEXT,
    annotations JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_records_created_at ON memory_records(created_at);
CREATE INDEX IF NOT EXISTS idx_records_producer ON memory_records(producer);
CREATE INDEX IF NOT EXISTS idx_records_event_kind ON memory_records(event_kind);
CREATE INDEX IF NOT EXISTS idx_records_state ON memory_records(resolution_state);
CREATE INDEX IF NOT EXISTS idx_records_email_thread ON memory_records(email_thread_id) WHERE email_thread_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_records_task ON memory_records(task_id) WHERE task_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_records_delegation ON memory_records(delegation_id) WHERE delegation_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_records_run ON memory_records(run_id) WHERE run_id IS NOT NULL;

-- Coordination runs: one row per agent work session.
CREATE TABLE IF NOT EXISTS coordination_runs (
    id TEXT PRIMARY KEY,
    producer TEXT NOT NULL,
    run_kind TEXT NOT NULL,
    model TEXT,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    items_processed INTEGER NOT NULL DEFAULT 0,
    outcome_summary TEXT,
    findings JSONB,
    total_tokens INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running',
    error_detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_producer ON coordination_runs(producer);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON coordination_runs(started_at);
`
