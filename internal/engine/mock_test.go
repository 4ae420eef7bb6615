package engine

import (
	"context"
	"time"

	"github.com/johnohhh1/opscoord/internal/storage"
	"github.com/johnohhh1/opscoord/pkg/types"
)

// mockStore implements storage.Store with overridable function fields.
// Methods without an override return zero values.
type mockStore struct {
	recordEventFn          func(ctx context.Context, rec storage.NewRecord) (*types.MemoryRecord, error)
	getFn                  func(ctx context.Context, id string) (*types.MemoryRecord, error)
	recentFn               func(ctx context.Context, opts storage.RecentOptions) ([]*types.MemoryRecord, error)
	relatedFn              func(ctx context.Context, ref types.EntityRef) ([]*types.MemoryRecord, error)
	searchFn               func(ctx context.Context, opts storage.SearchOptions) ([]*types.MemoryRecord, error)
	resolveByEntityFn      func(ctx context.Context, ref types.EntityRef, opts storage.ResolveOptions) (int, error)
	resolveByTextFn        func(ctx context.Context, topic string, opts storage.ResolveOptions) (int, error)
	startRunFn             func(ctx context.Context, run storage.NewRun) (*types.CoordinationRun, error)
	finishRunFn            func(ctx context.Context, id string, result storage.RunResult) error
	getRunFn               func(ctx context.Context, id string) (*types.CoordinationRun, error)
	deleteStaleActiveFn    func(ctx context.Context, kind types.EventKind, cutoff time.Time, dryRun bool) (int, error)
	deleteResolvedBeforeFn func(ctx context.Context, cutoff time.Time, dryRun bool) (int, int, error)
	deleteDuplicatesFn     func(ctx context.Context, window time.Duration, dryRun bool) (int, int, error)
}

var _ storage.Store = (*mockStore)(nil)

func (m *mockStore) RecordEvent(ctx context.Context, rec storage.NewRecord) (*types.MemoryRecord, error) {
	if m.recordEventFn != nil {
		return m.recordEventFn(ctx, rec)
	}
	return &types.MemoryRecord{ID: "mock", Producer: rec.Producer, EventKind: rec.EventKind, Summary: rec.Summary}, nil
}

func (m *mockStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) Recent(ctx context.Context, opts storage.RecentOptions) ([]*types.MemoryRecord, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, opts)
	}
	return nil, nil
}

func (m *mockStore) Related(ctx context.Context, ref types.EntityRef) ([]*types.MemoryRecord, error) {
	if m.relatedFn != nil {
		return m.relatedFn(ctx, ref)
	}
	return nil, nil
}

func (m *mockStore) Search(ctx context.Context, opts storage.SearchOptions) ([]*types.MemoryRecord, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, opts)
	}
	return nil, nil
}

func (m *mockStore) ResolveByEntity(ctx context.Context, ref types.EntityRef, opts storage.ResolveOptions) (int, error) {
	if m.resolveByEntityFn != nil {
		return m.resolveByEntityFn(ctx, ref, opts)
	}
	return 0, nil
}

func (m *mockStore) ResolveByText(ctx context.Context, topic string, opts storage.ResolveOptions) (int, error) {
	if m.resolveByTextFn != nil {
		return m.resolveByTextFn(ctx, topic, opts)
	}
	return 0, nil
}

func (m *mockStore) StartRun(ctx context.Context, run storage.NewRun) (*types.CoordinationRun, error) {
	if m.startRunFn != nil {
		return m.startRunFn(ctx, run)
	}
	return &types.CoordinationRun{ID: "mock-run", Producer: run.Producer, RunKind: run.RunKind, Status: types.RunStatusRunning}, nil
}

func (m *mockStore) FinishRun(ctx context.Context, id string, result storage.RunResult) error {
	if m.finishRunFn != nil {
		return m.finishRunFn(ctx, id, result)
	}
	return nil
}

func (m *mockStore) GetRun(ctx context.Context, id string) (*types.CoordinationRun, error) {
	if m.getRunFn != nil {
		return m.getRunFn(ctx, id)
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) DeleteStaleActive(ctx context.Context, kind types.EventKind, cutoff time.Time, dryRun bool) (int, error) {
	if m.deleteStaleActiveFn != nil {
		return m.deleteStaleActiveFn(ctx, kind, cutoff, dryRun)
	}
	return 0, nil
}

func (m *mockStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int, int, error) {
	if m.deleteResolvedBeforeFn != nil {
		return m.deleteResolvedBeforeFn(ctx, cutoff, dryRun)
	}
	return 0, 0, nil
}

func (m *mockStore) DeleteDuplicates(ctx context.Context, window time.Duration, dryRun bool) (int, int, error) {
	if m.deleteDuplicatesFn != nil {
		return m.deleteDuplicatesFn(ctx, window, dryRun)
	}
	return 0, 0, nil
}

func (m *mockStore) Close() error { return nil }
