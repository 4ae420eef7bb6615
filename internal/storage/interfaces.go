// Package storage provides composable storage interfaces for the opscoord
// coordination memory.
//
// The layer is designed around small, focused interfaces that backends
// implement independently: MemoryStore for the producer-facing write/read
// path, RunStore for batch-job bookkeeping, and MaintenanceStore for the
// retention primitives. The sqlite and postgres packages each implement all
// three on a single store type.
//
// Read-after-write visibility is the load-bearing contract of this package.
// Independent producer processes commit writes that must be visible to the
// very next read from any other session, so implementations must issue a
// fresh query on every read entry point and must never hold a process-local
// object or identity cache across calls. Mutations are single statements
// (one insert, or one bulk update keyed by a selection predicate) so
// concurrent callers cannot interleave a read-modify-write race.
package storage

import (
	"context"
	"time"

	"github.com/johnohhh1/opscoord/pkg/types"
)

// MemoryStore is the producer-facing contract: synchronous writes, windowed
// and entity-scoped reads, and idempotent bulk resolution.
type MemoryStore interface {
	// RecordEvent persists exactly one new record and returns it. The write
	// is durable before the call returns; on failure the error wraps
	// ErrWriteFailure and nothing is persisted.
	RecordEvent(ctx context.Context, rec NewRecord) (*types.MemoryRecord, error)

	// Get retrieves a record by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*types.MemoryRecord, error)

	// Recent returns records with created_at inside [now-window, now],
	// newest first. Every call issues a fresh query against the backing
	// store; results are never served from a local cache.
	Recent(ctx context.Context, opts RecentOptions) ([]*types.MemoryRecord, error)

	// Related returns every record whose entity refs contain ref (exact
	// match), oldest first, reconstructing the timeline for that entity.
	// An empty ref ID yields an empty result.
	Related(ctx context.Context, ref types.EntityRef) ([]*types.MemoryRecord, error)

	// Search returns records whose summary contains the query text
	// case-insensitively, newest first. An empty query yields an empty
	// result, not an error.
	Search(ctx context.Context, opts SearchOptions) ([]*types.MemoryRecord, error)

	// ResolveByEntity resolves every Active record referencing ref within
	// the lookback window: appends the annotation, flips the state, and
	// prefixes the summary marker exactly once. Returns the number of
	// records changed; re-invocation on an already-resolved set returns 0.
	ResolveByEntity(ctx context.Context, ref types.EntityRef, opts ResolveOptions) (int, error)

	// ResolveByText is ResolveByEntity's free-text counterpart: the
	// criterion is a case-insensitive substring match on summary (and,
	// per opts, the context payload). Blank topics resolve nothing.
	ResolveByText(ctx context.Context, topic string, opts ResolveOptions) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// RunStore tracks CoordinationRuns, the batch-job envelope around a group
// of records.
type RunStore interface {
	// StartRun opens a run in the running state and returns it.
	StartRun(ctx context.Context, run NewRun) (*types.CoordinationRun, error)

	// FinishRun records the outcome and stamps completed_at. A non-empty
	// ErrorDetail marks the run failed. Returns ErrNotFound for unknown IDs.
	FinishRun(ctx context.Context, id string, result RunResult) error

	// GetRun retrieves a run by ID. Returns ErrNotFound when absent.
	GetRun(ctx context.Context, id string) (*types.CoordinationRun, error)
}

// MaintenanceStore exposes the destructive retention primitives. Each
// operation is a single bulk statement; dry runs report the affected count
// without deleting.
type MaintenanceStore interface {
	// DeleteStaleActive hard-deletes Active records of the given kind
	// created before cutoff. Records nobody acted on past their policy
	// window are judged abandoned, urgent or not.
	DeleteStaleActive(ctx context.Context, kind types.EventKind, cutoff time.Time, dryRun bool) (int, error)

	// DeleteResolvedBefore hard-deletes Resolved records whose resolved_at
	// is before cutoff and reports how many resolved records were kept.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time, dryRun bool) (deleted, kept int, err error)

	// DeleteDuplicates removes records sharing an identical summary with a
	// newer record created within window of them. The newest member of
	// each duplicate group always survives.
	DeleteDuplicates(ctx context.Context, window time.Duration, dryRun bool) (removed, kept int, err error)
}

// Store is the full backend contract implemented by the sqlite and postgres
// packages.
type Store interface {
	MemoryStore
	RunStore
	MaintenanceStore
}
