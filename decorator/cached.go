package decorator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/cache"
)

// CacheConfig describes one cached read.
type CacheConfig struct {
	// Prefix namespaces the entry and its bookkeeping sets, e.g. "post".
	Prefix string
	// Key is an optional static segment after the prefix, e.g. "postid".
	Key string
	// Discriminator names the argument that alone identifies the entry.
	// Empty means every argument is part of the key.
	Discriminator string
	TTL           time.Duration

	// TrackViewCount counts one view per actor and ViewCountWindow.
	TrackViewCount  bool
	ViewCountWindow time.Duration

	// RecordHistory adds the entry key to the prefix history set on every
	// call so the daily reset knows which rows were read.
	RecordHistory bool
}

// Validate checks the configuration.
func (c CacheConfig) Validate() error {
	if c.Prefix == "" {
		return &ConfigError{Field: "Prefix", Message: "must not be empty"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.TrackViewCount && c.ViewCountWindow <= 0 {
		return &ConfigError{Field: "ViewCountWindow", Message: "must be greater than 0 when view counting is enabled"}
	}
	return nil
}

// Cached makes a Read cheap to repeat within TTL. A hit returns the stored
// value without running the read. Store failures never fail the call: the
// read runs directly and its result is returned uncached. Errors from the
// read itself are returned unchanged and never cached.
type Cached[T any] struct {
	store    cache.Store
	cfg      CacheConfig
	codec    cache.Codec
	logger   *zap.Logger
	recorder Recorder
}

// NewCached builds a cached read over store.
func NewCached[T any](store cache.Store, cfg CacheConfig, opts ...Option) (*Cached[T], error) {
	if store == nil {
		return nil, &ConfigError{Field: "Store", Message: "must not be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Cached[T]{
		store:    store,
		cfg:      cfg,
		codec:    o.codec,
		logger:   o.logger.Named("cache").With(zap.String("prefix", cfg.Prefix)),
		recorder: o.recorder,
	}, nil
}

// Config returns the configuration the decorator was built with.
func (c *Cached[T]) Config() CacheConfig { return c.cfg }

// Key resolves the entry key for args.
func (c *Cached[T]) Key(args cache.Args) string {
	return cache.BuildKey(c.cfg.Prefix, c.cfg.Key, c.cfg.Discriminator, args)
}

// Do serves read through the cache.
func (c *Cached[T]) Do(ctx context.Context, args cache.Args, read Read[T]) (T, error) {
	key := c.Key(args)

	if c.cfg.TrackViewCount {
		if err := c.countView(ctx, key); err != nil {
			return c.bypass(ctx, key, "count view", err, read)
		}
	}

	if c.cfg.RecordHistory {
		if err := c.store.SetAdd(ctx, cache.HistorySetKey(c.cfg.Prefix), key); err != nil {
			return c.bypass(ctx, key, "record history", err, read)
		}
	}

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		value, decodeErr := cache.Decode[T](c.codec, data)
		if decodeErr == nil {
			c.recorder.CacheResult(c.cfg.Prefix, ResultHit)
			return value, nil
		}
		// unreadable entries are dropped so the next call can refill them
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			c.logger.Debug("failed to drop undecodable entry", zap.String("key", key), zap.Error(delErr))
		}
		return c.bypass(ctx, key, "decode", decodeErr, read)

	case errors.Is(err, cache.ErrMiss):
		c.recorder.CacheResult(c.cfg.Prefix, ResultMiss)
		return c.fill(ctx, key, read)

	default:
		return c.bypass(ctx, key, "get", err, read)
	}
}

// Evict removes the entry for args.
func (c *Cached[T]) Evict(ctx context.Context, args cache.Args) error {
	return c.store.Delete(ctx, c.Key(args))
}

func (c *Cached[T]) fill(ctx context.Context, key string, read Read[T]) (T, error) {
	value, err := read(ctx)
	if err != nil {
		return value, err
	}

	data, err := cache.Encode(c.codec, value)
	if err != nil {
		c.logger.Warn("failed to encode result", zap.String("key", key), zap.Error(err))
		c.recorder.CacheResult(c.cfg.Prefix, ResultError)
		return value, nil
	}

	if err := c.store.SetWithTTL(ctx, key, data, c.cfg.TTL); err != nil {
		// the read already ran; its result is still good
		c.logger.Warn("failed to store result", zap.String("key", key), zap.Error(err))
		c.recorder.CacheResult(c.cfg.Prefix, ResultError)
	}
	return value, nil
}

func (c *Cached[T]) bypass(ctx context.Context, key, step string, cause error, read Read[T]) (T, error) {
	c.logger.Warn("cache degraded, reading from source",
		zap.String("key", key),
		zap.String("step", step),
		zap.Error(cause),
	)
	c.recorder.CacheResult(c.cfg.Prefix, ResultBypass)
	return read(ctx)
}

// countView increments the entry counter once per actor and window.
// Anonymous calls are not counted.
func (c *Cached[T]) countView(ctx context.Context, key string) error {
	actor, ok := ActorFrom(ctx)
	if !ok {
		return nil
	}

	// SET NX with expiry: only the first call in the window wins the marker
	marker := cache.RateLimitKey(key, actor)
	marked, err := c.store.TryAcquireLock(ctx, marker, actor, c.cfg.ViewCountWindow)
	if err != nil {
		return err
	}
	if !marked {
		return nil
	}

	// the member goes in before the counter exists, so a failed SetAdd
	// costs this view and never leaves a counter no flush will read
	counter := cache.ViewCountKey(key)
	pendingKey := cache.PendingSetKey(c.cfg.Prefix)
	if err := c.store.SetAdd(ctx, pendingKey, counter); err != nil {
		c.releaseMarker(ctx, marker, actor)
		return err
	}
	if _, err := c.store.Increment(ctx, counter); err != nil {
		c.releaseMarker(ctx, marker, actor)
		return err
	}
	// a flush may have dropped the member as stale before the increment
	if err := c.store.SetAdd(ctx, pendingKey, counter); err != nil {
		c.logger.Warn("failed to re-register view counter",
			zap.String("key", counter),
			zap.Error(err),
		)
	}
	c.recorder.ViewCounted(c.cfg.Prefix)
	return nil
}

// releaseMarker lets the actor's next read count the view that just failed.
func (c *Cached[T]) releaseMarker(ctx context.Context, marker, actor string) {
	if _, err := c.store.ReleaseLock(ctx, marker, actor); err != nil {
		c.logger.Debug("failed to release view marker", zap.String("key", marker), zap.Error(err))
	}
}
