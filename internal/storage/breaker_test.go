package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/johnohhh1/opscoord/pkg/types"
)

// flakyStore fails writes on demand. Only the methods the breaker wraps
// matter; the rest satisfy the interface.
type flakyStore struct {
	failing bool
	writes  int
}

var errBackendDown = errors.New("backend down")

func (f *flakyStore) RecordEvent(ctx context.Context, rec NewRecord) (*types.MemoryRecord, error) {
	f.writes++
	if f.failing {
		return nil, errBackendDown
	}
	return &types.MemoryRecord{ID: "ok", Summary: rec.Summary}, nil
}

func (f *flakyStore) ResolveByText(ctx context.Context, topic string, opts ResolveOptions) (int, error) {
	f.writes++
	if f.failing {
		return 0, errBackendDown
	}
	return 1, nil
}

func (f *flakyStore) ResolveByEntity(ctx context.Context, ref types.EntityRef, opts ResolveOptions) (int, error) {
	return 0, nil
}

func (f *flakyStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	return &types.MemoryRecord{ID: id}, nil
}

func (f *flakyStore) Recent(ctx context.Context, opts RecentOptions) ([]*types.MemoryRecord, error) {
	return nil, nil
}

func (f *flakyStore) Related(ctx context.Context, ref types.EntityRef) ([]*types.MemoryRecord, error) {
	return nil, nil
}

func (f *flakyStore) Search(ctx context.Context, opts SearchOptions) ([]*types.MemoryRecord, error) {
	return nil, nil
}

func (f *flakyStore) StartRun(ctx context.Context, run NewRun) (*types.CoordinationRun, error) {
	return &types.CoordinationRun{ID: "run"}, nil
}

func (f *flakyStore) FinishRun(ctx context.Context, id string, result RunResult) error {
	if id == "missing" {
		return ErrNotFound
	}
	return nil
}

func (f *flakyStore) GetRun(ctx context.Context, id string) (*types.CoordinationRun, error) {
	return nil, ErrNotFound
}

func (f *flakyStore) DeleteStaleActive(ctx context.Context, kind types.EventKind, cutoff time.Time, dryRun bool) (int, error) {
	return 0, nil
}

func (f *flakyStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int, int, error) {
	return 0, 0, nil
}

func (f *flakyStore) DeleteDuplicates(ctx context.Context, window time.Duration, dryRun bool) (int, int, error) {
	return 0, 0, nil
}

func (f *flakyStore) Close() error { return nil }

func validRecord() NewRecord {
	return NewRecord{
		Producer:  types.ProducerTriage,
		EventKind: types.EventEmailAnalyzed,
		Summary:   "test record",
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	backend := &flakyStore{failing: true}
	store := NewBreakerStoreWithConfig(backend, BreakerConfig{MaxFailures: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.RecordEvent(ctx, validRecord()); !errors.Is(err, errBackendDown) {
			t.Fatalf("write %d: expected backend error, got %v", i, err)
		}
	}
	if store.State() != "open" {
		t.Fatalf("expected open breaker after 3 failures, got %s", store.State())
	}

	// Open circuit fails fast without touching the backend.
	before := backend.writes
	_, err := store.RecordEvent(ctx, validRecord())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, ErrWriteFailure) {
		t.Errorf("open breaker should wrap ErrWriteFailure, got %v", err)
	}
	if backend.writes != before {
		t.Error("open breaker must not reach the backend")
	}

	// Resolutions share the same circuit.
	if _, err := store.ResolveByText(ctx, "topic", ResolveOptions{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable on resolve, got %v", err)
	}
}

func TestBreakerRecovers(t *testing.T) {
	backend := &flakyStore{failing: true}
	store := NewBreakerStoreWithConfig(backend, BreakerConfig{
		MaxFailures: 2,
		Timeout:     50 * time.Millisecond,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		store.RecordEvent(ctx, validRecord())
	}
	if store.State() != "open" {
		t.Fatalf("expected open breaker, got %s", store.State())
	}

	backend.failing = false
	time.Sleep(60 * time.Millisecond)

	// Probe write succeeds and the circuit closes again.
	if _, err := store.RecordEvent(ctx, validRecord()); err != nil {
		t.Fatalf("probe write failed: %v", err)
	}
	if _, err := store.RecordEvent(ctx, validRecord()); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if store.State() != "closed" {
		t.Errorf("expected closed breaker after recovery, got %s", store.State())
	}
}

func TestBreakerIgnoresCallerMistakes(t *testing.T) {
	backend := &flakyStore{}
	store := NewBreakerStoreWithConfig(backend, BreakerConfig{MaxFailures: 2})
	ctx := context.Background()

	// Repeated not-found errors are caller mistakes, not backend health.
	for i := 0; i < 10; i++ {
		if err := store.FinishRun(ctx, "missing", RunResult{}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if store.State() != "closed" {
		t.Errorf("caller mistakes must not trip the breaker, got %s", store.State())
	}

	if _, err := store.RecordEvent(ctx, validRecord()); err != nil {
		t.Errorf("write after caller mistakes should succeed: %v", err)
	}
}

func TestBreakerReadsBypassCircuit(t *testing.T) {
	backend := &flakyStore{failing: true}
	store := NewBreakerStoreWithConfig(backend, BreakerConfig{MaxFailures: 1})
	ctx := context.Background()

	store.RecordEvent(ctx, validRecord())
	if store.State() != "open" {
		t.Fatalf("expected open breaker, got %s", store.State())
	}

	// Reads pass straight through to the backend.
	if _, err := store.Get(ctx, "any"); err != nil {
		t.Errorf("reads must bypass an open write breaker: %v", err)
	}
}
