package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// FallbackLocker takes leases from the shared store and switches to a
// process-local lease table while the shared store is unavailable. Leases
// taken locally only exclude callers inside this process.
type FallbackLocker struct {
	primary Locker
	local   Locker
	// tokens of leases held in the local table
	held   *xsync.MapOf[string, struct{}]
	logger *zap.Logger
}

// NewFallbackLocker builds a locker over primary with local as the fallback.
func NewFallbackLocker(primary, local Locker, logger *zap.Logger) *FallbackLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackLocker{
		primary: primary,
		local:   local,
		held:    xsync.NewMapOf[string, struct{}](),
		logger:  logger.Named("locker"),
	}
}

func (l *FallbackLocker) TryAcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := l.primary.TryAcquireLock(ctx, key, token, ttl)
	if err == nil || !errors.Is(err, ErrUnavailable) {
		return ok, err
	}

	l.logger.Warn("shared lock store unavailable, using local lock",
		zap.String("key", key),
		zap.Error(err),
	)
	ok, err = l.local.TryAcquireLock(ctx, key, token, ttl)
	if ok {
		l.held.Store(token, struct{}{})
	}
	return ok, err
}

func (l *FallbackLocker) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	if _, ok := l.held.LoadAndDelete(token); ok {
		return l.local.ReleaseLock(ctx, key, token)
	}
	return l.primary.ReleaseLock(ctx, key, token)
}

func (l *FallbackLocker) RenewLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if _, ok := l.held.Load(token); ok {
		return l.local.RenewLock(ctx, key, token, ttl)
	}
	return l.primary.RenewLock(ctx, key, token, ttl)
}
