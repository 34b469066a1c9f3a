package decorator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/cache"
)

// LockKeyPrefix namespaces every lock key.
const LockKeyPrefix = "lock"

// LockConfig describes one critical section.
type LockConfig struct {
	// Name identifies the operation, e.g. "LikePost". It is snake cased
	// into the key namespace.
	Name string
	// Discriminator names the argument that alone identifies the resource.
	Discriminator string

	// MaxWaitTime bounds how long acquisition may wait. Zero means a single
	// attempt.
	MaxWaitTime time.Duration
	// LeaseTime is the lock expiry. The lock is released earlier when the
	// operation returns.
	LeaseTime time.Duration
	// RetryBaseDelay is the first backoff step; it doubles on each attempt.
	RetryBaseDelay time.Duration

	// KeepAlive renews the lease every LeaseTime/3 while the operation runs.
	KeepAlive bool

	ReleaseRetries    int
	ReleaseRetryDelay time.Duration
}

// DefaultLockConfig returns the defaults for name.
func DefaultLockConfig(name string) LockConfig {
	return LockConfig{
		Name:              name,
		MaxWaitTime:       time.Second,
		LeaseTime:         5 * time.Second,
		RetryBaseDelay:    100 * time.Millisecond,
		ReleaseRetries:    3,
		ReleaseRetryDelay: 100 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c LockConfig) Validate() error {
	if toSnake(c.Name) == "" {
		return &ConfigError{Field: "Name", Message: "must contain a letter or digit"}
	}
	if c.MaxWaitTime < 0 {
		return &ConfigError{Field: "MaxWaitTime", Message: "must be non-negative"}
	}
	if c.LeaseTime <= 0 {
		return &ConfigError{Field: "LeaseTime", Message: "must be greater than 0"}
	}
	if c.RetryBaseDelay <= 0 {
		return &ConfigError{Field: "RetryBaseDelay", Message: "must be greater than 0"}
	}
	if c.ReleaseRetries < 1 {
		return &ConfigError{Field: "ReleaseRetries", Message: "must be at least 1"}
	}
	if c.ReleaseRetryDelay < 0 {
		return &ConfigError{Field: "ReleaseRetryDelay", Message: "must be non-negative"}
	}
	return nil
}

// Locked runs a Mutation while holding a lease on the resource key. At most
// one holder runs per key as long as the operation finishes within the
// lease; enable KeepAlive for work that may outlive it.
type Locked[T any] struct {
	locker   cache.Locker
	cfg      LockConfig
	name     string
	tokens   func() string
	logger   *zap.Logger
	recorder Recorder
}

// NewLocked builds a lock decorator.
func NewLocked[T any](locker cache.Locker, cfg LockConfig, opts ...Option) (*Locked[T], error) {
	if locker == nil {
		return nil, &ConfigError{Field: "Locker", Message: "must not be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	name := toSnake(cfg.Name)
	return &Locked[T]{
		locker:   locker,
		cfg:      cfg,
		name:     name,
		tokens:   o.tokens,
		logger:   o.logger.Named("lock").With(zap.String("lock", name)),
		recorder: o.recorder,
	}, nil
}

// Key resolves the lock key for args.
func (l *Locked[T]) Key(args cache.Args) string {
	return LockKeyPrefix + cache.KeySeparator + cache.BuildKey(l.name, "", l.cfg.Discriminator, args)
}

// Do acquires the lock for args, runs fn and releases the lock. It returns a
// *LockTimeoutError when the lock stays taken for MaxWaitTime.
func (l *Locked[T]) Do(ctx context.Context, args cache.Args, fn Mutation[T]) (T, error) {
	var zero T
	key := l.Key(args)
	token := l.tokens()

	if err := l.acquire(ctx, key, token); err != nil {
		return zero, err
	}

	stop := l.keepAlive(key, token)
	defer func() {
		stop()
		l.release(ctx, key, token)
	}()

	return fn(ctx)
}

func (l *Locked[T]) acquire(ctx context.Context, key, token string) error {
	start := time.Now()
	deadline := start.Add(l.cfg.MaxWaitTime)
	delay := l.cfg.RetryBaseDelay

	for {
		ok, err := l.locker.TryAcquireLock(ctx, key, token, l.cfg.LeaseTime)
		if err != nil {
			l.recorder.LockResult(l.name, LockFailed)
			return err
		}
		if ok {
			l.recorder.LockResult(l.name, LockAcquired)
			l.recorder.LockWait(l.name, time.Since(start))
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			waited := time.Since(start)
			l.recorder.LockResult(l.name, LockTimeout)
			l.recorder.LockWait(l.name, waited)
			l.logger.Debug("lock wait budget exhausted", zap.String("key", key), zap.Duration("waited", waited))
			return &LockTimeoutError{Key: key, Waited: waited}
		}

		wait := min(delay, remaining)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

// release runs even when ctx is already cancelled so the key does not stay
// taken until the lease runs out.
func (l *Locked[T]) release(ctx context.Context, key, token string) {
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= l.cfg.ReleaseRetries; attempt++ {
		var released bool
		released, err = l.locker.ReleaseLock(ctx, key, token)
		if err == nil {
			if !released {
				l.recorder.LockResult(l.name, LockExpired)
				l.logger.Warn("lease expired before the operation finished", zap.String("key", key))
			}
			return
		}
		if attempt < l.cfg.ReleaseRetries {
			time.Sleep(l.cfg.ReleaseRetryDelay)
		}
	}

	l.recorder.LockResult(l.name, LockFailed)
	l.logger.Error("failed to release lock, it will expire with its lease",
		zap.String("key", key),
		zap.Int("attempts", l.cfg.ReleaseRetries),
		zap.Error(err),
	)
}

func (l *Locked[T]) keepAlive(key, token string) (stop func()) {
	if !l.cfg.KeepAlive {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(l.cfg.LeaseTime / 3)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				renewed, err := l.locker.RenewLock(context.Background(), key, token, l.cfg.LeaseTime)
				if err == nil && renewed {
					continue
				}
				l.recorder.LockResult(l.name, LockLost)
				l.logger.Error("lost lease while the operation is still running",
					zap.String("key", key),
					zap.Error(err),
				)
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
