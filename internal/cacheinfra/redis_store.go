package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis client used by RedisStore.
type RedisConfig struct {
	Addr         string
	DB           int
	Password     string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Validate checks the connection settings.
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return &ConfigError{Field: "Addr", Message: "must not be empty"}
	}
	if c.DB < 0 {
		return &ConfigError{Field: "DB", Message: "must be non-negative"}
	}
	if c.PoolSize < 0 {
		return &ConfigError{Field: "PoolSize", Message: "must be non-negative"}
	}
	return nil
}

// NewRedisClient builds a go-redis client from cfg.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Password:     cfg.Password,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	settleScript = redis.NewScript(`
local left = redis.call("DECRBY", KEYS[1], ARGV[1])
if left <= 0 then
	redis.call("DEL", KEYS[1])
	redis.call("SREM", KEYS[2], KEYS[1])
	return 0
end
return left`)
)

// RedisStore is the Backend used in production. Every command error other
// than a miss is returned as a *StoreError.
type RedisStore struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, logger: logger.Named("redis")}
}

func (s *RedisStore) fail(op, key string, err error) error {
	s.logger.Debug("redis command failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
	return &StoreError{Op: op, Key: key, Err: err}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, s.fail("GET", key, err)
	}
	return b, nil
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return s.fail("SET", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return s.fail("DEL", keys[0], err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, s.fail("EXISTS", key, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, s.fail("INCR", key, err)
	}
	return n, nil
}

func (s *RedisStore) SetAdd(ctx context.Context, setKey string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := s.rdb.SAdd(ctx, setKey, toArgs(members)...).Err(); err != nil {
		return s.fail("SADD", setKey, err)
	}
	return nil
}

func (s *RedisStore) SetMembers(ctx context.Context, setKey string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, s.fail("SMEMBERS", setKey, err)
	}
	return members, nil
}

func (s *RedisStore) SetRemove(ctx context.Context, setKey string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := s.rdb.SRem(ctx, setKey, toArgs(members)...).Err(); err != nil {
		return s.fail("SREM", setKey, err)
	}
	return nil
}

func (s *RedisStore) SetClear(ctx context.Context, setKey string) error {
	if err := s.rdb.Del(ctx, setKey).Err(); err != nil {
		return s.fail("DEL", setKey, err)
	}
	return nil
}

func (s *RedisStore) Settle(ctx context.Context, counterKey, setKey string, amount int64) (int64, error) {
	left, err := settleScript.Run(ctx, s.rdb, []string{counterKey, setKey}, amount).Int64()
	if err != nil {
		return 0, s.fail("SETTLE", counterKey, err)
	}
	return left, nil
}

func (s *RedisStore) TryAcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, s.fail("SETNX", key, err)
	}
	return ok, nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, s.fail("RELEASE", key, err)
	}
	return n == 1, nil
}

func (s *RedisStore) RenewLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, s.rdb, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, s.fail("RENEW", key, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return s.fail("PING", "", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func toArgs(members []string) []any {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
