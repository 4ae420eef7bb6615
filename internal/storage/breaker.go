package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/johnohhh1/opscoord/pkg/types"
)

// ErrStoreUnavailable is returned when the circuit breaker is open and
// writes are being rejected to stop hammering a down backend.
var ErrStoreUnavailable = errors.New("memory store unavailable")

// BreakerConfig holds the circuit breaker configuration for the write path.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive write failures required to
	// trip the circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing a probe
	// write through. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

// BreakerStore wraps a Store with a circuit breaker on the mutating
// operations. Memory writes are best-effort from the caller's point of
// view: when the backing store is down, failing fast keeps triage and chat
// workflows responsive instead of stalling each one on a dead connection.
// Reads pass through untouched so the fresh-read contract is preserved.
type BreakerStore struct {
	Store
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps store with default breaker settings.
func NewBreakerStore(store Store) *BreakerStore {
	return NewBreakerStoreWithConfig(store, BreakerConfig{})
}

// NewBreakerStoreWithConfig wraps store with custom breaker settings.
func NewBreakerStoreWithConfig(store Store, cfg BreakerConfig) *BreakerStore {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        "MemoryWriteBreaker",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Interval:    0, // never clear counts periodically
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// Caller mistakes are not backend health signals.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound)
		},
	}

	return &BreakerStore{
		Store:   store,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State returns the breaker state as "closed", "open", or "half-open".
func (b *BreakerStore) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// execute runs fn through the breaker, mapping the open-state rejection to
// ErrStoreUnavailable wrapped in ErrWriteFailure.
func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := b.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrWriteFailure, ErrStoreUnavailable)
		}
		return nil, err
	}
	return result, nil
}

// RecordEvent persists through the breaker.
func (b *BreakerStore) RecordEvent(ctx context.Context, rec NewRecord) (*types.MemoryRecord, error) {
	result, err := b.execute(func() (any, error) {
		return b.Store.RecordEvent(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.MemoryRecord), nil
}

// ResolveByEntity resolves through the breaker.
func (b *BreakerStore) ResolveByEntity(ctx context.Context, ref types.EntityRef, opts ResolveOptions) (int, error) {
	result, err := b.execute(func() (any, error) {
		count, err := b.Store.ResolveByEntity(ctx, ref, opts)
		return count, err
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// ResolveByText resolves through the breaker.
func (b *BreakerStore) ResolveByText(ctx context.Context, topic string, opts ResolveOptions) (int, error) {
	result, err := b.execute(func() (any, error) {
		count, err := b.Store.ResolveByText(ctx, topic, opts)
		return count, err
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// StartRun opens a run through the breaker.
func (b *BreakerStore) StartRun(ctx context.Context, run NewRun) (*types.CoordinationRun, error) {
	result, err := b.execute(func() (any, error) {
		return b.Store.StartRun(ctx, run)
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.CoordinationRun), nil
}

// FinishRun closes a run through the breaker.
func (b *BreakerStore) FinishRun(ctx context.Context, id string, result RunResult) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.Store.FinishRun(ctx, id, result)
	})
	return err
}
