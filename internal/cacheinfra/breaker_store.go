package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig controls when the breaker stops sending commands to a
// failing backend.
type BreakerConfig struct {
	Name string
	// ConsecutiveFailures trips the breaker. Must be greater than 0.
	ConsecutiveFailures uint32
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counts. Zero never resets.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// DefaultBreakerConfig returns the settings used for the shared cache.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "cache-store",
		ConsecutiveFailures: 5,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             10 * time.Second,
	}
}

// Validate checks the breaker settings.
func (c BreakerConfig) Validate() error {
	if c.ConsecutiveFailures == 0 {
		return &ConfigError{Field: "ConsecutiveFailures", Message: "must be greater than 0"}
	}
	if c.Interval < 0 {
		return &ConfigError{Field: "Interval", Message: "must be non-negative"}
	}
	if c.Timeout < 0 {
		return &ConfigError{Field: "Timeout", Message: "must be non-negative"}
	}
	return nil
}

// BreakerStore short-circuits a Backend after repeated failures so requests
// degrade immediately instead of waiting on network timeouts. Misses are
// not failures.
type BreakerStore struct {
	next Backend
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next with a circuit breaker.
func NewBreakerStore(next Backend, cfg BreakerConfig, logger *zap.Logger) (*BreakerStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("breaker")

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}, nil
}

// State exposes the breaker state for health reporting.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *BreakerStore, op, key string, fn func() (T, error)) (T, error) {
	var (
		out    T
		missed bool
	)
	_, err := b.cb.Execute(func() (interface{}, error) {
		v, err := fn()
		if errors.Is(err, ErrMiss) {
			missed = true
			return nil, nil
		}
		out = v
		return nil, err
	})
	if missed {
		return out, ErrMiss
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return out, &StoreError{Op: op, Key: key, Err: err}
	}
	return out, err
}

func run(b *BreakerStore, op, key string, fn func() error) error {
	_, err := execute(b, op, key, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	return execute(b, "GET", key, func() ([]byte, error) {
		return b.next.Get(ctx, key)
	})
}

func (b *BreakerStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return run(b, "SET", key, func() error {
		return b.next.SetWithTTL(ctx, key, value, ttl)
	})
}

func (b *BreakerStore) Delete(ctx context.Context, keys ...string) error {
	return run(b, "DEL", firstKey(keys), func() error {
		return b.next.Delete(ctx, keys...)
	})
}

func (b *BreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	return execute(b, "EXISTS", key, func() (bool, error) {
		return b.next.Exists(ctx, key)
	})
}

func (b *BreakerStore) Increment(ctx context.Context, key string) (int64, error) {
	return execute(b, "INCR", key, func() (int64, error) {
		return b.next.Increment(ctx, key)
	})
}

func (b *BreakerStore) SetAdd(ctx context.Context, setKey string, members ...string) error {
	return run(b, "SADD", setKey, func() error {
		return b.next.SetAdd(ctx, setKey, members...)
	})
}

func (b *BreakerStore) SetMembers(ctx context.Context, setKey string) ([]string, error) {
	return execute(b, "SMEMBERS", setKey, func() ([]string, error) {
		return b.next.SetMembers(ctx, setKey)
	})
}

func (b *BreakerStore) SetRemove(ctx context.Context, setKey string, members ...string) error {
	return run(b, "SREM", setKey, func() error {
		return b.next.SetRemove(ctx, setKey, members...)
	})
}

func (b *BreakerStore) SetClear(ctx context.Context, setKey string) error {
	return run(b, "DEL", setKey, func() error {
		return b.next.SetClear(ctx, setKey)
	})
}

func (b *BreakerStore) Settle(ctx context.Context, counterKey, setKey string, amount int64) (int64, error) {
	return execute(b, "SETTLE", counterKey, func() (int64, error) {
		return b.next.Settle(ctx, counterKey, setKey, amount)
	})
}

func (b *BreakerStore) TryAcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return execute(b, "SETNX", key, func() (bool, error) {
		return b.next.TryAcquireLock(ctx, key, token, ttl)
	})
}

func (b *BreakerStore) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	return execute(b, "RELEASE", key, func() (bool, error) {
		return b.next.ReleaseLock(ctx, key, token)
	})
}

func (b *BreakerStore) RenewLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return execute(b, "RENEW", key, func() (bool, error) {
		return b.next.RenewLock(ctx, key, token, ttl)
	})
}

// Ping bypasses the breaker so health checks see the real backend state.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

func firstKey(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}
