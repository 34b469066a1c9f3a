package cacheinfra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// failingBackend fails every command while down is set and records calls.
type failingBackend struct {
	*MemoryStore
	down  bool
	calls int
}

func (f *failingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.down {
		return nil, &StoreError{Op: "GET", Key: key, Err: errors.New("connection refused")}
	}
	return f.MemoryStore.Get(ctx, key)
}

func TestBreakerConfig_Validate(t *testing.T) {
	if err := DefaultBreakerConfig().Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
	cfg := DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 0
	var cfgErr *ConfigError
	if err := cfg.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != "ConsecutiveFailures" {
		t.Errorf("expected ConsecutiveFailures error, got %v", err)
	}
}

func TestBreakerStore_MissIsNotFailure(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryStore: newTestMemoryStore(t, newFakeClock())}
	cfg := DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 2

	store, err := NewBreakerStore(backend, cfg, nil)
	if err != nil {
		t.Fatalf("NewBreakerStore failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
			t.Fatalf("expected ErrMiss, got %v", err)
		}
	}
	if store.State() != gobreaker.StateClosed {
		t.Errorf("expected breaker to stay closed on misses, got %v", store.State())
	}
}

func TestBreakerStore_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryStore: newTestMemoryStore(t, newFakeClock()), down: true}
	cfg := DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Hour

	store, err := NewBreakerStore(backend, cfg, nil)
	if err != nil {
		t.Fatalf("NewBreakerStore failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	}
	if store.State() != gobreaker.StateOpen {
		t.Fatalf("expected breaker to open, got %v", store.State())
	}

	_, err = store.Get(ctx, "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected open breaker to report ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState in chain, got %v", err)
	}
	if backend.calls != 2 {
		t.Errorf("expected backend to be skipped while open, got %d calls", backend.calls)
	}
}
