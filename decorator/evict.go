package decorator

import (
	"context"

	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/cache"
)

// EvictConfig names the cached entry a mutation invalidates. It uses the
// same fields as the CacheConfig of the read it invalidates.
type EvictConfig struct {
	Prefix        string
	Key           string
	Discriminator string
}

// EvictFor returns the EvictConfig matching a cached read.
func EvictFor(cfg CacheConfig) EvictConfig {
	return EvictConfig{Prefix: cfg.Prefix, Key: cfg.Key, Discriminator: cfg.Discriminator}
}

// Validate checks the configuration.
func (c EvictConfig) Validate() error {
	if c.Prefix == "" {
		return &ConfigError{Field: "Prefix", Message: "must not be empty"}
	}
	return nil
}

// Evicting deletes a cached entry around a Mutation: before it runs, and
// again after it succeeds so a read that refilled the entry in between does
// not keep the old value alive. Eviction failures are logged only.
type Evicting[T any] struct {
	store    cache.Store
	cfg      EvictConfig
	logger   *zap.Logger
	recorder Recorder
}

// NewEvicting builds an evicting decorator.
func NewEvicting[T any](store cache.Store, cfg EvictConfig, opts ...Option) (*Evicting[T], error) {
	if store == nil {
		return nil, &ConfigError{Field: "Store", Message: "must not be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Evicting[T]{
		store:    store,
		cfg:      cfg,
		logger:   o.logger.Named("evict").With(zap.String("prefix", cfg.Prefix)),
		recorder: o.recorder,
	}, nil
}

// Key resolves the evicted key for args.
func (e *Evicting[T]) Key(args cache.Args) string {
	return cache.BuildKey(e.cfg.Prefix, e.cfg.Key, e.cfg.Discriminator, args)
}

// Do evicts the entry for args and runs fn.
func (e *Evicting[T]) Do(ctx context.Context, args cache.Args, fn Mutation[T]) (T, error) {
	key := e.Key(args)
	e.evict(ctx, key)

	value, err := fn(ctx)
	if err != nil {
		return value, err
	}

	e.evict(ctx, key)
	return value, nil
}

func (e *Evicting[T]) evict(ctx context.Context, key string) {
	if err := e.store.Delete(ctx, key); err != nil {
		e.recorder.CacheResult(e.cfg.Prefix, ResultError)
		e.logger.Warn("failed to evict entry", zap.String("key", key), zap.Error(err))
	}
}
