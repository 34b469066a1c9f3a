package cacheinfra

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the in-process store.
type Config struct {
	// Capacity defines the maximum number of payload entries the store keeps.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the upper bound for any payload lifetime. Entries written with a
	// longer (or no) TTL are still dropped after this duration.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the store reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for a single node.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// ToSturdycOptions converts the optional parts of Config to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

type payload struct {
	value     []byte
	expiresAt time.Time
}

func (p payload) expired(now time.Time) bool {
	return !p.expiresAt.IsZero() && !now.Before(p.expiresAt)
}

type lease struct {
	token     string
	expiresAt time.Time
}

// leaseSweepInterval bounds how often TryAcquireLock scans for expired leases.
const leaseSweepInterval = time.Minute

// MemoryStore is a single process Backend. Cached results live in a capacity
// bounded sturdyc client. Counters live in an xsync map so they are never
// evicted before they are settled. Leases, which include the rate-limit
// markers written through TryAcquireLock, live in an xsync map that
// TryAcquireLock sweeps of expired entries at most once per
// leaseSweepInterval.
type MemoryStore struct {
	payloads *sturdyc.Client[payload]
	counters *xsync.MapOf[string, int64]
	leases   *xsync.MapOf[string, lease]

	// unix nanos of the last lease sweep
	lastSweep atomic.Int64

	setsMu sync.Mutex
	sets   map[string]map[string]struct{}

	now func() time.Time
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for payload and lease expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore validates cfg and builds the store.
func NewMemoryStore(cfg Config, opts ...MemoryOption) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &MemoryStore{
		payloads: sturdyc.New[payload](
			cfg.Capacity,
			cfg.NumShards,
			cfg.TTL,
			cfg.EvictionPercentage,
			cfg.ToSturdycOptions()...,
		),
		counters: xsync.NewMapOf[string, int64](),
		leases:   xsync.NewMapOf[string, lease](),
		sets:     make(map[string]map[string]struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if n, ok := s.counters.Load(key); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	if l, ok := s.leases.Load(key); ok && s.now().Before(l.expiresAt) {
		return []byte(l.token), nil
	}
	p, ok := s.payloads.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if p.expired(s.now()) {
		s.payloads.Delete(key)
		return nil, ErrMiss
	}
	return append([]byte(nil), p.value...), nil
}

func (s *MemoryStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	p := payload{value: append([]byte(nil), value...)}
	if ttl > 0 {
		p.expiresAt = s.now().Add(ttl)
	}
	s.payloads.Set(key, p)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.payloads.Delete(key)
		s.counters.Delete(key)
		s.leases.Delete(key)
	}

	s.setsMu.Lock()
	for _, key := range keys {
		delete(s.sets, key)
	}
	s.setsMu.Unlock()
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == ErrMiss {
		s.setsMu.Lock()
		_, ok := s.sets[key]
		s.setsMu.Unlock()
		return ok, nil
	}
	return err == nil, err
}

func (s *MemoryStore) Increment(ctx context.Context, key string) (int64, error) {
	var next int64
	s.counters.Compute(key, func(old int64, loaded bool) (int64, bool) {
		next = old + 1
		return next, false
	})
	return next, nil
}

func (s *MemoryStore) SetAdd(ctx context.Context, setKey string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	s.setsMu.Lock()
	defer s.setsMu.Unlock()

	set, ok := s.sets[setKey]
	if !ok {
		set = make(map[string]struct{}, len(members))
		s.sets[setKey] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SetMembers(ctx context.Context, setKey string) ([]string, error) {
	s.setsMu.Lock()
	defer s.setsMu.Unlock()

	set := s.sets[setKey]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) SetRemove(ctx context.Context, setKey string, members ...string) error {
	s.setsMu.Lock()
	defer s.setsMu.Unlock()
	s.removeMembersLocked(setKey, members...)
	return nil
}

func (s *MemoryStore) removeMembersLocked(setKey string, members ...string) {
	set, ok := s.sets[setKey]
	if !ok {
		return
	}
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(s.sets, setKey)
	}
}

func (s *MemoryStore) SetClear(ctx context.Context, setKey string) error {
	s.setsMu.Lock()
	delete(s.sets, setKey)
	s.setsMu.Unlock()
	return nil
}

func (s *MemoryStore) Settle(ctx context.Context, counterKey, setKey string, amount int64) (int64, error) {
	var remaining int64
	s.counters.Compute(counterKey, func(old int64, loaded bool) (int64, bool) {
		remaining = old - amount
		if remaining > 0 {
			return remaining, false
		}
		remaining = 0
		// the counter bucket stays locked while the set is updated, so a
		// concurrent Increment can only run before or after both steps
		s.setsMu.Lock()
		s.removeMembersLocked(setKey, counterKey)
		s.setsMu.Unlock()
		return 0, true
	})
	return remaining, nil
}

func (s *MemoryStore) TryAcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	acquired := false
	now := s.now()
	s.sweepLeases(now)
	s.leases.Compute(key, func(cur lease, loaded bool) (lease, bool) {
		if loaded && now.Before(cur.expiresAt) {
			return cur, false
		}
		acquired = true
		return lease{token: token, expiresAt: now.Add(ttl)}, false
	})
	return acquired, nil
}

// sweepLeases drops expired leases. Markers that are never released would
// otherwise stay in the map for the life of the process.
func (s *MemoryStore) sweepLeases(now time.Time) {
	last := s.lastSweep.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < leaseSweepInterval {
		return
	}
	if !s.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	s.leases.Range(func(key string, l lease) bool {
		if now.Before(l.expiresAt) {
			return true
		}
		s.leases.Compute(key, func(cur lease, loaded bool) (lease, bool) {
			// re-check, the key may have been acquired again since Range read it
			return cur, !loaded || !now.Before(cur.expiresAt)
		})
		return true
	})
}

func (s *MemoryStore) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	released := false
	now := s.now()
	s.leases.Compute(key, func(cur lease, loaded bool) (lease, bool) {
		if !loaded {
			return cur, true
		}
		if cur.token == token && now.Before(cur.expiresAt) {
			released = true
			return cur, true
		}
		// expired leases are dropped; leases owned by someone else stay
		return cur, !now.Before(cur.expiresAt)
	})
	return released, nil
}

func (s *MemoryStore) RenewLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	renewed := false
	now := s.now()
	s.leases.Compute(key, func(cur lease, loaded bool) (lease, bool) {
		if !loaded {
			return cur, true
		}
		if cur.token == token && now.Before(cur.expiresAt) {
			renewed = true
			cur.expiresAt = now.Add(ttl)
		}
		return cur, false
	})
	return renewed, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
