package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/cache"
	"github.com/goliatone/go-community-cache/decorator"
	"github.com/goliatone/go-community-cache/internal/config"
	"github.com/goliatone/go-community-cache/internal/filestore"
	"github.com/goliatone/go-community-cache/internal/httpapi"
	"github.com/goliatone/go-community-cache/internal/like"
	"github.com/goliatone/go-community-cache/internal/metrics"
	"github.com/goliatone/go-community-cache/internal/persistence"
	"github.com/goliatone/go-community-cache/internal/post"
	"github.com/goliatone/go-community-cache/reconcile"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "community"

// Container provides dependency injection for the service. It owns the
// cache store, the database and everything built on them, and closes them
// in reverse order.
type Container struct {
	config *config.Config
	logger *zap.Logger

	redis  *redis.Client
	store  cache.Store
	locker cache.Locker
	db     *bun.DB

	posts     *persistence.PostStore
	likes     *like.Service
	service   *post.Service
	files     filestore.Deleter
	metrics   *metrics.Collector
	scheduler *reconcile.Scheduler
	router    *httpapi.Router
}

// NewContainer builds every component described by cfg. The schema is
// created when missing.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("di: config must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{config: cfg, logger: logger, metrics: metrics.NewCollector(MetricsNamespace)}
	if err := c.build(ctx); err != nil {
		if cerr := c.Close(); cerr != nil {
			logger.Warn("cleanup after failed build", zap.Error(cerr))
		}
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	if err := c.buildCache(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	db, err := persistence.Open(c.config.Database(), c.logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	c.db = db
	if err := persistence.CreateSchema(ctx, db); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	c.posts = persistence.NewPostStore(db, nil)
	c.likes = like.NewService(db, nil, c.logger)

	decoratorOpts := []decorator.Option{
		decorator.WithLogger(c.logger),
		decorator.WithRecorder(c.metrics),
	}
	c.service, err = post.NewService(c.store, c.locker, c.posts, c.likes, post.DefaultConfig(), decoratorOpts...)
	if err != nil {
		return fmt.Errorf("post service: %w", err)
	}

	c.files, err = filestore.New(c.config.Files(), c.logger)
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}

	c.scheduler, err = reconcile.NewScheduler(c.store, c.posts, c.config.Reconcile(),
		reconcile.WithLogger(c.logger),
		reconcile.WithRecorder(c.metrics),
		reconcile.WithFileDeleter(c.files),
		reconcile.WithLocker(c.locker),
		reconcile.WithLockOptions(decorator.WithRecorder(c.metrics)),
	)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	c.router = httpapi.NewRouter(c.service, c.metrics, map[string]httpapi.Checker{
		"cache":    c.store.Ping,
		"database": c.db.PingContext,
	}, c.logger)
	return nil
}

// buildCache picks the store driver. Locks fall back to an in-process
// store while the shared one is unavailable.
func (c *Container) buildCache() error {
	local, err := cache.NewMemoryStore(c.config.Cache())
	if err != nil {
		return err
	}

	switch c.config.CacheDriver {
	case config.CacheRedis:
		rdb, err := cache.NewRedisClient(c.config.Redis())
		if err != nil {
			return err
		}
		c.redis = rdb
		c.store = cache.NewRedisStore(rdb, c.logger)
	default:
		c.store = local
	}

	if c.config.BreakerEnabled {
		wrapped, err := cache.WithBreaker(c.store, c.config.Breaker(), c.logger)
		if err != nil {
			return err
		}
		c.store = wrapped
	}

	if c.store == local {
		c.locker = local
	} else {
		c.locker = cache.NewFallbackLocker(c.store, local, c.logger)
	}
	c.logger.Info("cache store ready",
		zap.String("driver", c.config.CacheDriver),
		zap.Bool("breaker", c.config.BreakerEnabled),
	)
	return nil
}

// Config returns the configuration the container was built from.
func (c *Container) Config() *config.Config { return c.config }

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// CacheStore returns the shared cache store.
func (c *Container) CacheStore() cache.Store { return c.store }

// Locker returns the locker used by lock decorators.
func (c *Container) Locker() cache.Locker { return c.locker }

// DB returns the database handle.
func (c *Container) DB() *bun.DB { return c.db }

// PostStore returns the durable post store.
func (c *Container) PostStore() *persistence.PostStore { return c.posts }

// PostService returns the decorated post service.
func (c *Container) PostService() *post.Service { return c.service }

// Metrics returns the metrics collector.
func (c *Container) Metrics() *metrics.Collector { return c.metrics }

// Scheduler returns the reconciliation scheduler. It is not started.
func (c *Container) Scheduler() *reconcile.Scheduler { return c.scheduler }

// Handler returns the HTTP handler with every route mounted.
func (c *Container) Handler() http.Handler { return c.router.Setup() }

// Close releases the database and the Redis client.
func (c *Container) Close() error {
	var errs []error
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
