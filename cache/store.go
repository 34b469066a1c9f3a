package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-community-cache/internal/cacheinfra"
)

var (
	// ErrMiss is returned by Store.Get when the key holds no value.
	ErrMiss = cacheinfra.ErrMiss

	// ErrUnavailable matches every failure talking to the backing store.
	ErrUnavailable = cacheinfra.ErrUnavailable
)

// StoreError carries the command and key of a failed store call. It always
// matches ErrUnavailable.
type StoreError = cacheinfra.StoreError

// ConfigError represents a configuration validation error.
type ConfigError = cacheinfra.ConfigError

// Locker is the lease part of a Store. Leases are owned by token: only the
// holder can release or renew them.
type Locker interface {
	TryAcquireLock(ctx context.Context, key, token string, lease time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
	RenewLock(ctx context.Context, key, token string, lease time.Duration) (bool, error)
}

// Store is the low-latency key-value store shared by the decorators and the
// reconciliation jobs. Implementations must be safe for concurrent use.
type Store interface {
	Locker

	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)

	SetAdd(ctx context.Context, setKey string, members ...string) error
	SetMembers(ctx context.Context, setKey string) ([]string, error)
	SetRemove(ctx context.Context, setKey string, members ...string) error
	SetClear(ctx context.Context, setKey string) error

	// Settle subtracts a flushed amount from a counter. Once the counter
	// reaches zero it is deleted and removed from setKey atomically.
	Settle(ctx context.Context, counterKey, setKey string, amount int64) (int64, error)

	Ping(ctx context.Context) error
}
