package cacheinfra

import (
	"context"
	"time"
)

// Locker is the lease subset of a Backend. Tokens identify the holder so a
// lease that expired and was taken by someone else is never released or
// extended by the previous owner.
type Locker interface {
	TryAcquireLock(ctx context.Context, key, token string, lease time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
	RenewLock(ctx context.Context, key, token string, lease time.Duration) (bool, error)
}

// Backend is the full command set every store adapter in this package
// implements. It mirrors cache.Store.
type Backend interface {
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

	// Settle subtracts amount from the counter at counterKey. When nothing is
	// left the counter is deleted and removed from setKey in the same step,
	// so increments that land while a flush is in progress are never lost.
	Settle(ctx context.Context, counterKey, setKey string, amount int64) (int64, error)

	Ping(ctx context.Context) error
}
