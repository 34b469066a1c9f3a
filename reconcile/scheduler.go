package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/cache"
	"github.com/goliatone/go-community-cache/decorator"
	"github.com/goliatone/go-community-cache/internal/persistence"
)

// Task names, also used as lock names and metric labels.
const (
	TaskFlush = "flush_view_counts"
	TaskReset = "reset_daily_counters"
	TaskPurge = "purge_soft_deleted"
)

// FlushLockName guards every pass over the pending set, whichever task
// starts it. Its key is "lock:flush_pending_views".
const FlushLockName = "FlushPendingViews"

// Run outcomes reported to Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// PurgeResult lists what PostStore.PurgeDisabled removed.
type PurgeResult = persistence.PurgeResult

// PostStore is the durable side of reconciliation.
type PostStore interface {
	AddViewCounts(ctx context.Context, deltas map[int64]int64) ([]int64, error)
	RollupToday(ctx context.Context, ids []int64) (int64, error)
	PurgeDisabled(ctx context.Context, cutoff time.Time) (PurgeResult, error)
}

// FileDeleter removes stored attachment blobs. Deletion is best effort.
type FileDeleter interface {
	DeleteFiles(ctx context.Context, paths []string) error
}

// Recorder receives the outcome of every task run.
type Recorder interface {
	TaskRun(task, outcome string, took time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) TaskRun(string, string, time.Duration) {}

type nopFiles struct{}

func (nopFiles) DeleteFiles(context.Context, []string) error { return nil }

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets where run outcomes are reported.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithFileDeleter sets the storage purged attachments are deleted from.
func WithFileDeleter(f FileDeleter) Option {
	return func(s *Scheduler) {
		if f != nil {
			s.files = f
		}
	}
}

// WithLocker sets the locker guarding task runs. It defaults to the store.
func WithLocker(l cache.Locker) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLockOptions passes options to the task lock decorators.
func WithLockOptions(opts ...decorator.Option) Option {
	return func(s *Scheduler) {
		s.lockOpts = append(s.lockOpts, opts...)
	}
}

// WithClock sets the time source used for the purge cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

type task struct {
	spec string
	run  func(ctx context.Context) error
	lock *decorator.Locked[struct{}]
}

// Scheduler runs the reconciliation tasks on their cron specs. Each run
// holds a cluster wide lock, so with several instances only one runs a
// task at a time; the others skip that tick.
type Scheduler struct {
	store    cache.Store
	posts    PostStore
	files    FileDeleter
	locker   cache.Locker
	lockOpts []decorator.Option
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
	recorder Recorder

	cron  *cron.Cron
	tasks map[string]*task
	order []string

	// flushMu and flushLock serialise flushes in this process and across
	// instances. Two concurrent flushes would both write and settle the
	// same counters.
	flushMu   sync.Mutex
	flushLock *decorator.Locked[FlushResult]
}

// NewScheduler builds a Scheduler. Call Start to begin running tasks.
func NewScheduler(store cache.Store, posts PostStore, cfg Config, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, &cache.ConfigError{Field: "Store", Message: "must not be nil"}
	}
	if posts == nil {
		return nil, &cache.ConfigError{Field: "PostStore", Message: "must not be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		store:    store,
		posts:    posts,
		files:    nopFiles{},
		locker:   store,
		cfg:      cfg,
		now:      time.Now,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.Named("reconcile")

	s.tasks = map[string]*task{
		TaskFlush: {spec: cfg.FlushSpec, run: func(ctx context.Context) error {
			res, err := s.FlushViewCounts(ctx)
			s.logger.Info("view counts flushed",
				zap.Int("keys", res.Keys),
				zap.Int("entities", res.Entities),
				zap.Int64("views", res.Views),
				zap.Int("ignored", res.Ignored),
			)
			return err
		}},
		TaskReset: {spec: cfg.ResetSpec, run: func(ctx context.Context) error {
			res, err := s.ResetDailyCounters(ctx)
			s.logger.Info("daily counters reset",
				zap.Int64("rolled_up", res.RolledUp),
				zap.Int("history", res.HistoryLen),
			)
			return err
		}},
		TaskPurge: {spec: cfg.PurgeSpec, run: func(ctx context.Context) error {
			res, err := s.PurgeSoftDeleted(ctx)
			s.logger.Info("soft deleted rows purged",
				zap.Int64("posts", res.Posts),
				zap.Int64("attachments", res.Attachments),
				zap.Int64("comments", res.Comments),
				zap.Int64("likes", res.Likes),
				zap.Int("files", res.Files),
			)
			return err
		}},
	}
	s.order = []string{TaskFlush, TaskReset, TaskPurge}

	lockOpts := append([]decorator.Option{decorator.WithLogger(s.logger)}, s.lockOpts...)
	for _, name := range s.order {
		lockCfg := decorator.DefaultLockConfig(name)
		lockCfg.MaxWaitTime = 0
		lockCfg.LeaseTime = cfg.LockLease
		lockCfg.KeepAlive = true
		l, err := decorator.NewLocked[struct{}](s.locker, lockCfg, lockOpts...)
		if err != nil {
			return nil, err
		}
		s.tasks[name].lock = l
	}

	flushCfg := decorator.DefaultLockConfig(FlushLockName)
	flushCfg.MaxWaitTime = cfg.LockLease
	flushCfg.LeaseTime = cfg.LockLease
	flushCfg.KeepAlive = true
	flushLock, err := decorator.NewLocked[FlushResult](s.locker, flushCfg, lockOpts...)
	if err != nil {
		return nil, err
	}
	s.flushLock = flushLock

	cronOpts := []cron.Option{
		cron.WithLogger(cronLogger{s.logger.Sugar()}),
		cron.WithChain(
			cron.Recover(cronLogger{s.logger.Sugar()}),
			cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()}),
		),
	}
	if cfg.Location != nil {
		cronOpts = append(cronOpts, cron.WithLocation(cfg.Location))
	}
	s.cron = cron.New(cronOpts...)

	for _, name := range s.order {
		if _, err := s.cron.AddFunc(s.tasks[name].spec, func() {
			_ = s.Run(context.Background(), name)
		}); err != nil {
			return nil, &cache.ConfigError{Field: name, Message: err.Error()}
		}
	}
	return s, nil
}

// Start begins running tasks on their schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("flush", s.cfg.FlushSpec),
		zap.String("reset", s.cfg.ResetSpec),
		zap.String("purge", s.cfg.PurgeSpec),
	)
}

// Stop stops scheduling and waits for running tasks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tasks lists the task names in schedule order.
func (s *Scheduler) Tasks() []string {
	return append([]string(nil), s.order...)
}

// Run executes one task now under its lock. A run skipped because another
// holder has the lock returns nil. Failures and panics are returned as a
// *TaskError and never stop the schedule.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("reconcile: unknown task %q", name)
	}

	start := time.Now()
	_, err := t.lock.Do(ctx, nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.safeRun(ctx, t)
	})
	took := time.Since(start)

	switch {
	case errors.Is(err, decorator.ErrLockTimeout):
		s.recorder.TaskRun(name, OutcomeSkipped, took)
		s.logger.Info("task skipped, another instance holds it", zap.String("task", name))
		return nil
	case err != nil:
		s.recorder.TaskRun(name, OutcomeError, took)
		s.logger.Error("task failed", zap.String("task", name), zap.Duration("took", took), zap.Error(err))
		return &TaskError{Task: name, Err: err}
	default:
		s.recorder.TaskRun(name, OutcomeSuccess, took)
		return nil
	}
}

func (s *Scheduler) safeRun(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return t.run(ctx)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
