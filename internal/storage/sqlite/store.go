package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/johnohhh1/opscoord/internal/storage"
	"github.com/johnohhh1/opscoord/pkg/types"
)

// Ensure *Store implements the full backend contract at compile time.
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using SQLite.
//
// The store holds no record cache of any kind: every read method issues a
// fresh query, so resolutions committed by another process are visible to
// the very next read from this one. WAL mode lets those cross-process
// readers proceed without blocking the writer.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode, and creates the
// schema.
func NewStore(dsn string) (*Store, error) {
	// The driver's default time encoding is Go's time.Time.String form,
	// which SQLite's date functions cannot parse; julianday(created_at)
	// would be NULL and the duplicate sweep's window arithmetic would
	// never match. _time_format=sqlite stores timestamps in a form the
	// date functions read.
	if !strings.Contains(dsn, "_time_format=") {
		if strings.ContainsRune(dsn, '?') {
			dsn += "&_time_format=sqlite"
		} else {
			dsn += "?_time_format=sqlite"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors when the triage,
	// digest, and chat workers write at the same time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	// Wait instead of failing immediately when another goroutine holds the
	// connection.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// RunMigrations applies all pending migrations from the given directory.
// Use this instead of the embedded Schema constant when the deployment
// manages schema changes through migration files.
func (s *Store) RunMigrations(migrationsDir string) error {
	mgr, err := storage.NewMigrationManager(s.db, migrationsDir)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create migration manager: %w", err)
	}

	if err := mgr.Up(); err != nil {
		return fmt.Errorf("sqlite: failed to run migrations: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for direct queries
// outside the Store contract, such as ad hoc inspection.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close flushes the WAL into the main database file and releases resources.
// The TRUNCATE checkpoint removes the -shm and -wal files so another
// process can open the database without stale WAL state.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}

	return s.db.Close()
}

// recordColumns is the canonical column list shared by every record query.
const recordColumns = `
	id, producer, event_kind, summary, context, findings,
	email_thread_id, task_id, delegation_id, run_id,
	produced_by_model, confidence, tokens_used,
	created_at, resolution_state, resolved_at, resolution_reason, annotations
`

// RecordEvent persists exactly one new record in a single INSERT.
func (s *Store) RecordEvent(ctx context.Context, rec storage.NewRecord) (*types.MemoryRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	contextJSON, err := marshalDocument(rec.Context)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to marshal context: %w", err)
	}
	findingsJSON, err := marshalDocument(rec.Findings)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to marshal findings: %w", err)
	}

	record := &types.MemoryRecord{
		ID:              uuid.New().String(),
		Producer:        rec.Producer,
		EventKind:       rec.EventKind,
		Summary:         rec.Summary,
		Context:         rec.Context,
		Findings:        rec.Findings,
		EntityRefs:      rec.EntityRefs,
		ProducedByModel: rec.Model,
		Confidence:      rec.Confidence,
		TokensUsed:      rec.TokensUsed,
		CreatedAt:       time.Now().UTC(),
		ResolutionState: types.StateActive,
	}

	const query = `
		INSERT INTO memory_records (
			id, producer, event_kind, summary, context, findings,
			email_thread_id, task_id, delegation_id, run_id,
			produced_by_model, confidence, tokens_used,
			created_at, resolution_state, annotations
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]')
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.Producer,
		record.EventKind,
		record.Summary,
		nullableBytes(contextJSON),
		nullableBytes(findingsJSON),
		nullableString(record.EntityRefs.EmailThreadID),
		nullableString(record.EntityRefs.TaskID),
		nullableString(record.EntityRefs.DelegationID),
		nullableString(record.EntityRefs.RunID),
		nullableString(record.ProducedByModel),
		record.Confidence,
		record.TokensUsed,
		record.CreatedAt,
		record.ResolutionState,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w: %w", storage.ErrWriteFailure, err)
	}

	return record, nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("sqlite: %w: record ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT"+recordColumns+"FROM memory_records WHERE id = ?", id)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get record: %w", err)
	}

	return record, nil
}

// Recent returns records created inside the window, newest first. Each call
// queries the database directly; nothing is served from memory.
func (s *Store) Recent(ctx context.Context, opts storage.RecentOptions) ([]*types.MemoryRecord, error) {
	opts.Normalize()

	cutoff := time.Now().UTC().Add(-opts.Window)

	query := "SELECT" + recordColumns + "FROM memory_records WHERE created_at >= ?"
	args := []any{cutoff}

	if opts.Producer != "" {
		query += " AND producer = ?"
		args = append(args, opts.Producer)
	}

	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, opts.Limit)

	return s.queryRecords(ctx, "Recent", query, args...)
}

// Related returns every record referencing ref (exact match), oldest first.
func (s *Store) Related(ctx context.Context, ref types.EntityRef) ([]*types.MemoryRecord, error) {
	col, ok := refColumn(ref.Kind)
	if !ok || ref.ID == "" {
		return nil, nil
	}

	query := "SELECT" + recordColumns + "FROM memory_records WHERE " + col + " = ? ORDER BY created_at ASC"
	return s.queryRecords(ctx, "Related", query, ref.ID)
}

// Search returns records whose summary contains the query text
// case-insensitively, newest first.
func (s *Store) Search(ctx context.Context, opts storage.SearchOptions) ([]*types.MemoryRecord, error) {
	opts.Normalize()
	if opts.Query == "" {
		return nil, nil
	}

	query := "SELECT" + recordColumns + "FROM memory_records WHERE instr(lower(summary), ?) > 0"
	args := []any{strings.ToLower(opts.Query)}

	if opts.Producer != "" {
		query += " AND producer = ?"
		args = append(args, opts.Producer)
	}

	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, opts.Limit)

	return s.queryRecords(ctx, "Search", query, args...)
}

// ResolveByEntity resolves every Active record referencing ref within the
// lookback window. The whole sweep is one UPDATE guarded by the state
// predicate, so a concurrent resolver can never double-annotate a record.
func (s *Store) ResolveByEntity(ctx context.Context, ref types.EntityRef, opts storage.ResolveOptions) (int, error) {
	col, ok := refColumn(ref.Kind)
	if !ok || ref.ID == "" {
		return 0, nil
	}
	return s.resolveWhere(ctx, col+" = ?", []any{ref.ID}, opts)
}

// ResolveByText resolves every Active record whose summary (and, per opts,
// context) contains topic case-insensitively, within the lookback window.
func (s *Store) ResolveByText(ctx context.Context, topic string, opts storage.ResolveOptions) (int, error) {
	topic = strings.TrimSpace(strings.ToLower(topic))
	if topic == "" {
		return 0, nil
	}

	criterion := "instr(lower(summary), ?) > 0"
	args := []any{topic}
	if opts.MatchContext {
		criterion = "(" + criterion + " OR instr(lower(COALESCE(context, '')), ?) > 0)"
		args = append(args, topic)
	}
	if opts.ContextFilter != "" {
		criterion += " AND instr(lower(COALESCE(context, '')), ?) > 0"
		args = append(args, strings.ToLower(opts.ContextFilter))
	}

	return s.resolveWhere(ctx, criterion, args, opts)
}

// resolveWhere applies the shared resolution sweep: flip state, stamp
// resolved_at, append the annotation, and prefix the summary marker, all
// in one statement keyed by the selection predicate.
func (s *Store) resolveWhere(ctx context.Context, criterion string, criterionArgs []any, opts storage.ResolveOptions) (int, error) {
	opts.Normalize()

	now := time.Now().UTC()
	annotation, err := json.Marshal(types.Annotation{
		Timestamp: now,
		Note:      opts.Note,
		Actor:     opts.Actor,
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to marshal annotation: %w", err)
	}

	query := `
		UPDATE memory_records
		SET resolution_state = ?,
		    resolved_at = ?,
		    resolution_reason = ?,
		    summary = ? || summary,
		    annotations = json_insert(annotations, '$[#]', json(?))
		WHERE resolution_state = ?
		  AND ` + criterion

	args := []any{
		types.StateResolved,
		now,
		nullableString(opts.Reason),
		types.ResolvedPrefix,
		string(annotation),
		types.StateActive,
	}
	args = append(args, criterionArgs...)

	if opts.Lookback > 0 {
		query += " AND created_at >= ?"
		args = append(args, now.Add(-opts.Lookback))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: %w: resolve: %w", storage.ErrWriteFailure, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	return int(n), nil
}

// StartRun opens a coordination run in the running state.
func (s *Store) StartRun(ctx context.Context, run storage.NewRun) (*types.CoordinationRun, error) {
	if !types.IsValidProducer(run.Producer) || run.RunKind == "" {
		return nil, fmt.Errorf("sqlite: %w", storage.ErrInvalidInput)
	}

	created := &types.CoordinationRun{
		ID:        uuid.New().String(),
		Producer:  run.Producer,
		RunKind:   run.RunKind,
		StartedAt: time.Now().UTC(),
		Status:    types.RunStatusRunning,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coordination_runs (id, producer, run_kind, model, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		created.ID, created.Producer, created.RunKind,
		nullableString(run.Model), created.StartedAt, created.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w: start run: %w", storage.ErrWriteFailure, err)
	}

	return created, nil
}

// FinishRun records the outcome of a run. A non-empty ErrorDetail marks the
// run failed.
func (s *Store) FinishRun(ctx context.Context, id string, result storage.RunResult) error {
	if id == "" {
		return fmt.Errorf("sqlite: %w: run ID is required", storage.ErrInvalidInput)
	}

	findingsJSON, err := marshalDocument(result.Findings)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal run findings: %w", err)
	}

	status := types.RunStatusCompleted
	if result.ErrorDetail != "" {
		status = types.RunStatusFailed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE coordination_runs
		SET completed_at = ?,
		    items_processed = ?,
		    outcome_summary = ?,
		    findings = ?,
		    total_tokens = ?,
		    status = ?,
		    error_detail = ?
		WHERE id = ?`,
		time.Now().UTC(),
		result.ItemsProcessed,
		nullableString(result.OutcomeSummary),
		nullableBytes(findingsJSON),
		result.TotalTokens,
		status,
		nullableString(result.ErrorDetail),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: %w: finish run: %w", storage.ErrWriteFailure, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*types.CoordinationRun, error) {
	if id == "" {
		return nil, fmt.Errorf("sqlite: %w: run ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, producer, run_kind, started_at, completed_at,
		       items_processed, outcome_summary, findings, total_tokens,
		       status, error_detail
		FROM coordination_runs WHERE id = ?`, id)

	var run types.CoordinationRun
	var completedAt sql.NullTime
	var outcome, findingsJSON, errorDetail sql.NullString
	var totalTokens sql.NullInt64

	err := row.Scan(
		&run.ID, &run.Producer, &run.RunKind, &run.StartedAt, &completedAt,
		&run.ItemsProcessed, &outcome, &findingsJSON, &totalTokens,
		&run.Status, &errorDetail,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get run: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if outcome.Valid {
		run.OutcomeSummary = outcome.String
	}
	if errorDetail.Valid {
		run.ErrorDetail = errorDetail.String
	}
	if totalTokens.Valid {
		run.TotalTokens = int(totalTokens.Int64)
	}
	if findingsJSON.Valid && findingsJSON.String != "" {
		if err := json.Unmarshal([]byte(findingsJSON.String), &run.Findings); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal run findings: %w", err)
		}
	}

	return &run, nil
}

// DeleteStaleActive hard-deletes Active records of the given kind created
// before cutoff. Deliberately does not special-case urgent records: an item
// unresolved past its policy window is assumed abandoned or superseded.
func (s *Store) DeleteStaleActive(ctx context.Context, kind types.EventKind, cutoff time.Time, dryRun bool) (int, error) {
	const predicate = "resolution_state = 'active' AND event_kind = ? AND created_at < ?"

	if dryRun {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM memory_records WHERE "+predicate, kind, cutoff).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("sqlite: failed to count stale records: %w", err)
		}
		return n, nil
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM memory_records WHERE "+predicate, kind, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to delete stale records: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteResolvedBefore hard-deletes Resolved records resolved before cutoff
// and reports how many resolved records survive the sweep.
func (s *Store) DeleteResolvedBefore(ctx context.Context, cutoff time.Time, dryRun bool) (deleted, kept int, err error) {
	const predicate = "resolution_state = 'resolved' AND resolved_at IS NOT NULL AND resolved_at < ?"

	if dryRun {
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM memory_records WHERE "+predicate, cutoff).Scan(&deleted); err != nil {
			return 0, 0, fmt.Errorf("sqlite: failed to count expired resolved records: %w", err)
		}
	} else {
		result, execErr := s.db.ExecContext(ctx,
			"DELETE FROM memory_records WHERE "+predicate, cutoff)
		if execErr != nil {
			return 0, 0, fmt.Errorf("sqlite: failed to delete resolved records: %w", execErr)
		}
		n, raErr := result.RowsAffected()
		if raErr != nil {
			return 0, 0, fmt.Errorf("sqlite: failed to check rows affected: %w", raErr)
		}
		deleted = int(n)
	}

	// Resolved records inside the grace period stay auditable.
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memory_records
		WHERE resolution_state = 'resolved'
		  AND (resolved_at IS NULL OR resolved_at >= ?)`, cutoff).Scan(&kept); err != nil {
		return 0, 0, fmt.Errorf("sqlite: failed to count kept resolved records: %w", err)
	}

	return deleted, kept, nil
}

// DeleteDuplicates removes records that share an identical summary with a
// newer record created within window of them. The newest member of each
// duplicate group has no newer twin and therefore always survives.
func (s *Store) DeleteDuplicates(ctx context.Context, window time.Duration, dryRun bool) (removed, kept int, err error) {
	const predicate = `
		EXISTS (
			SELECT 1 FROM memory_records newer
			WHERE newer.summary = memory_records.summary
			  AND newer.id != memory_records.id
			  AND newer.created_at > memory_records.created_at
			  AND (julianday(newer.created_at) - julianday(memory_records.created_at)) * 86400.0 <= ?
		)`

	windowSeconds := window.Seconds()

	// Count surviving duplicate groups before deleting.
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT summary FROM memory_records GROUP BY summary HAVING COUNT(*) > 1
		)`).Scan(&kept); err != nil {
		return 0, 0, fmt.Errorf("sqlite: failed to count duplicate groups: %w", err)
	}

	if dryRun {
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM memory_records WHERE "+predicate, windowSeconds).Scan(&removed); err != nil {
			return 0, 0, fmt.Errorf("sqlite: failed to count duplicates: %w", err)
		}
		return removed, kept, nil
	}

	result, execErr := s.db.ExecContext(ctx,
		"DELETE FROM memory_records WHERE "+predicate, windowSeconds)
	if execErr != nil {
		return 0, 0, fmt.Errorf("sqlite: failed to delete duplicates: %w", execErr)
	}

	n, raErr := result.RowsAffected()
	if raErr != nil {
		return 0, 0, fmt.Errorf("sqlite: failed to check rows affected: %w", raErr)
	}

	return int(n), kept, nil
}

// queryRecords runs a record query and scans the full result set.
func (s *Store) queryRecords(ctx context.Context, op, query string, args ...any) ([]*types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	var records []*types.MemoryRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %s scan: %w", op, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s rows: %w", op, err)
	}

	return records, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one row in recordColumns order.
func scanRecord(row scanner) (*types.MemoryRecord, error) {
	var record types.MemoryRecord
	var contextJSON, findingsJSON, annotationsJSON sql.NullString
	var emailThreadID, taskID, delegationID, runID sql.NullString
	var model, reason sql.NullString
	var confidence, tokensUsed sql.NullInt64
	var resolvedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.Producer,
		&record.EventKind,
		&record.Summary,
		&contextJSON,
		&findingsJSON,
		&emailThreadID,
		&taskID,
		&delegationID,
		&runID,
		&model,
		&confidence,
		&tokensUsed,
		&record.CreatedAt,
		&record.ResolutionState,
		&resolvedAt,
		&reason,
		&annotationsJSON,
	)
	if err != nil {
		return nil, err
	}

	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &record.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}
	if findingsJSON.Valid && findingsJSON.String != "" {
		if err := json.Unmarshal([]byte(findingsJSON.String), &record.Findings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
		}
	}
	if annotationsJSON.Valid && annotationsJSON.String != "" {
		if err := json.Unmarshal([]byte(annotationsJSON.String), &record.Annotations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal annotations: %w", err)
		}
	}

	if emailThreadID.Valid {
		record.EntityRefs.EmailThreadID = emailThreadID.String
	}
	if taskID.Valid {
		record.EntityRefs.TaskID = taskID.String
	}
	if delegationID.Valid {
		record.EntityRefs.DelegationID = delegationID.String
	}
	if runID.Valid {
		record.EntityRefs.RunID = runID.String
	}
	if model.Valid {
		record.ProducedByModel = model.String
	}
	if confidence.Valid {
		record.Confidence = int(confidence.Int64)
	}
	if tokensUsed.Valid {
		record.TokensUsed = int(tokensUsed.Int64)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		record.ResolvedAt = &t
	}
	if reason.Valid {
		record.ResolutionReason = reason.String
	}

	return &record, nil
}

// refColumn maps an entity ref kind onto its column. The whitelist keeps
// caller input out of SQL text.
func refColumn(kind types.RefKind) (string, bool) {
	switch kind {
	case types.RefEmailThread:
		return "email_thread_id", true
	case types.RefTask:
		return "task_id", true
	case types.RefDelegation:
		return "delegation_id", true
	case types.RefRun:
		return "run_id", true
	}
	return "", false
}

// marshalDocument serializes a document, mapping nil/empty to nil bytes.
func marshalDocument(doc types.Document) ([]byte, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	return json.Marshal(doc)
}

// nullableBytes converts a byte slice to sql.NullString.
func nullableBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// nullableString converts a string to sql.NullString. Empty is NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
