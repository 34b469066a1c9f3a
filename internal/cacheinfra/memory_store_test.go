package cacheinfra

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemoryStore(t *testing.T, clock *fakeClock) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(DefaultConfig(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}
	return store
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}

	if cfg.TTL != 24*time.Hour {
		t.Errorf("expected TTL to be 24 hours, got %v", cfg.TTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if len(cfg.ToSturdycOptions()) != 0 {
		t.Error("expected no extra sturdyc options for the default config")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantError bool
		field     string
	}{
		{name: "valid default config", cfg: DefaultConfig()},
		{
			name:      "invalid capacity - zero",
			cfg:       Config{Capacity: 0, NumShards: 256, TTL: time.Minute, EvictionPercentage: 10},
			wantError: true,
			field:     "Capacity",
		},
		{
			name:      "invalid num shards - zero",
			cfg:       Config{Capacity: 10, NumShards: 0, TTL: time.Minute, EvictionPercentage: 10},
			wantError: true,
			field:     "NumShards",
		},
		{
			name:      "invalid TTL - zero",
			cfg:       Config{Capacity: 10, NumShards: 4, TTL: 0, EvictionPercentage: 10},
			wantError: true,
			field:     "TTL",
		},
		{
			name:      "invalid eviction percentage - too high",
			cfg:       Config{Capacity: 10, NumShards: 4, TTL: time.Minute, EvictionPercentage: 101},
			wantError: true,
			field:     "EvictionPercentage",
		},
		{
			name:      "invalid eviction interval",
			cfg:       Config{Capacity: 10, NumShards: 4, TTL: time.Minute, EvictionPercentage: 10, EvictionInterval: -time.Second},
			wantError: true,
			field:     "EvictionInterval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantError {
				if err != nil {
					t.Errorf("expected no error but got: %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T (%v)", err, err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestMemoryStore_GetSetWithTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newTestMemoryStore(t, clock)

	if _, err := store.Get(ctx, "post:postid:1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss on empty store, got %v", err)
	}

	if err := store.SetWithTTL(ctx, "post:postid:1", []byte("hello"), time.Minute); err != nil {
		t.Fatalf("SetWithTTL failed: %v", err)
	}

	got, err := store.Get(ctx, "post:postid:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected hello, got %q", got)
	}

	clock.Advance(time.Minute)
	if _, err := store.Get(ctx, "post:postid:1"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected entry to expire after its ttl, got %v", err)
	}
}

func TestMemoryStore_DeleteAndExists(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, newFakeClock())

	_ = store.SetWithTTL(ctx, "a", []byte("1"), 0)
	_, _ = store.Increment(ctx, "b")
	_ = store.SetAdd(ctx, "c", "x")

	for _, key := range []string{"a", "b", "c"} {
		ok, err := store.Exists(ctx, key)
		if err != nil || !ok {
			t.Errorf("expected %s to exist, got %v %v", key, ok, err)
		}
	}

	if err := store.Delete(ctx, "a", "b", "c"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	for _, key := range []string{"a", "b", "c"} {
		ok, err := store.Exists(ctx, key)
		if err != nil || ok {
			t.Errorf("expected %s to be gone, got %v %v", key, ok, err)
		}
	}
}

func TestMemoryStore_IncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Increment(ctx, "viewCount:post:postid:1")
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "viewCount:post:postid:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "50" {
		t.Errorf("expected counter 50, got %s", got)
	}
}

func TestMemoryStore_Sets(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, newFakeClock())

	_ = store.SetAdd(ctx, "post:update", "b", "a", "b")
	members, _ := store.SetMembers(ctx, "post:update")
	if len(members) != 2 || members[0] != "a" || members[1] != "b" {
		t.Errorf("expected [a b], got %v", members)
	}

	_ = store.SetRemove(ctx, "post:update", "a")
	members, _ = store.SetMembers(ctx, "post:update")
	if len(members) != 1 || members[0] != "b" {
		t.Errorf("expected [b], got %v", members)
	}

	_ = store.SetClear(ctx, "post:update")
	members, _ = store.SetMembers(ctx, "post:update")
	if len(members) != 0 {
		t.Errorf("expected empty set, got %v", members)
	}
}

func TestMemoryStore_SettleKeepsLateIncrements(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, newFakeClock())
	counter := "viewCount:post:postid:7"

	for i := 0; i < 3; i++ {
		_, _ = store.Increment(ctx, counter)
	}
	_ = store.SetAdd(ctx, "post:update", counter)

	// flush read 3, then two more views land before settling
	_, _ = store.Increment(ctx, counter)
	_, _ = store.Increment(ctx, counter)

	left, err := store.Settle(ctx, counter, "post:update", 3)
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if left != 2 {
		t.Errorf("expected 2 left after settle, got %d", left)
	}
	members, _ := store.SetMembers(ctx, "post:update")
	if len(members) != 1 {
		t.Errorf("expected counter to stay pending, got %v", members)
	}

	left, _ = store.Settle(ctx, counter, "post:update", 2)
	if left != 0 {
		t.Errorf("expected 0 left, got %d", left)
	}
	if _, err := store.Get(ctx, counter); !errors.Is(err, ErrMiss) {
		t.Errorf("expected counter deleted, got %v", err)
	}
	members, _ = store.SetMembers(ctx, "post:update")
	if len(members) != 0 {
		t.Errorf("expected pending set drained, got %v", members)
	}
}

func TestMemoryStore_Leases(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newTestMemoryStore(t, clock)

	ok, _ := store.TryAcquireLock(ctx, "lock:like_post:1", "t1", time.Second)
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	ok, _ = store.TryAcquireLock(ctx, "lock:like_post:1", "t2", time.Second)
	if ok {
		t.Fatal("expected second acquire to fail while lease is held")
	}

	released, _ := store.ReleaseLock(ctx, "lock:like_post:1", "t2")
	if released {
		t.Error("expected release with a foreign token to be refused")
	}

	renewed, _ := store.RenewLock(ctx, "lock:like_post:1", "t1", 2*time.Second)
	if !renewed {
		t.Error("expected owner to renew the lease")
	}

	clock.Advance(1500 * time.Millisecond)
	ok, _ = store.TryAcquireLock(ctx, "lock:like_post:1", "t2", time.Second)
	if ok {
		t.Error("expected renewed lease to still be held")
	}

	clock.Advance(time.Second)
	ok, _ = store.TryAcquireLock(ctx, "lock:like_post:1", "t2", time.Second)
	if !ok {
		t.Fatal("expected acquire to succeed after the lease expired")
	}

	released, _ = store.ReleaseLock(ctx, "lock:like_post:1", "t1")
	if released {
		t.Error("expected expired owner not to release the new holder's lease")
	}

	released, _ = store.ReleaseLock(ctx, "lock:like_post:1", "t2")
	if !released {
		t.Error("expected holder to release its lease")
	}
}

func TestMemoryStore_ExpiredMarkersAreSwept(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.Capacity = 100
	store, err := NewMemoryStore(cfg, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}

	const markers = 5000
	for i := 0; i < markers; i++ {
		key := "key:user:" + strconv.Itoa(i)
		if ok, _ := store.TryAcquireLock(ctx, key, "1", time.Minute); !ok {
			t.Fatalf("expected marker %s to be set", key)
		}
	}
	if got := store.leases.Size(); got != markers {
		t.Fatalf("expected %d live markers, got %d", markers, got)
	}

	ok, _ := store.TryAcquireLock(ctx, "lock:held", "t1", 72*time.Hour)
	if !ok {
		t.Fatal("expected long lease to be acquired")
	}

	clock.Advance(48 * time.Hour)
	if ok, _ := store.TryAcquireLock(ctx, "key:user:late", "1", time.Minute); !ok {
		t.Fatal("expected new marker to be set")
	}

	if got := store.leases.Size(); got != 2 {
		t.Errorf("expected only the live lease and the new marker to remain, got %d", got)
	}
	if ok, _ := store.TryAcquireLock(ctx, "lock:held", "t2", time.Minute); ok {
		t.Error("expected unexpired lease to survive the sweep")
	}
}
