package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/internal/cacheinfra"
)

// Config exposes the in-process store options.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// MemoryOption customises the in-process store.
type MemoryOption = cacheinfra.MemoryOption

// WithClock overrides the clock used for expiry by the in-process store.
func WithClock(now func() time.Time) MemoryOption {
	return cacheinfra.WithClock(now)
}

// NewMemoryStore builds a single process Store. Counters, sets and leases
// are only visible inside this process.
func NewMemoryStore(cfg Config, opts ...MemoryOption) (Store, error) {
	store, err := cacheinfra.NewMemoryStore(cfg.toInternal(), opts...)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// RedisConfig configures the Redis connection.
type RedisConfig = cacheinfra.RedisConfig

// NewRedisClient builds a go-redis client. The caller owns and closes it.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cacheinfra.NewRedisClient(cfg), nil
}

// NewRedisStore builds a Store over an existing client.
func NewRedisStore(rdb redis.UniversalClient, logger *zap.Logger) Store {
	return cacheinfra.NewRedisStore(rdb, logger)
}

// BreakerConfig controls the circuit breaker placed in front of a Store.
type BreakerConfig = cacheinfra.BreakerConfig

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return cacheinfra.DefaultBreakerConfig()
}

// WithBreaker wraps store so that once it keeps failing, calls fail fast
// with ErrUnavailable until the breaker probes it again.
func WithBreaker(store Store, cfg BreakerConfig, logger *zap.Logger) (Store, error) {
	wrapped, err := cacheinfra.NewBreakerStore(store, cfg, logger)
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

// NewFallbackLocker returns a Locker that uses local whenever primary
// reports ErrUnavailable.
func NewFallbackLocker(primary, local Locker, logger *zap.Logger) Locker {
	return cacheinfra.NewFallbackLocker(primary, local, logger)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
