package decorator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/cache"
)

// Read is a side-effect free operation that may be served from cache.
// Mutation is anything else. The two are distinct types so a mutation can
// only be passed to Cached by an explicit conversion.
type (
	Read[T any]     func(ctx context.Context) (T, error)
	Mutation[T any] func(ctx context.Context) (T, error)
)

// Recorder receives decorator outcomes. internal/metrics exports them to
// Prometheus; the default discards them.
type Recorder interface {
	CacheResult(prefix, result string)
	ViewCounted(prefix string)
	LockResult(name, result string)
	LockWait(name string, waited time.Duration)
}

// Cache results reported to Recorder.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultBypass = "bypass"
	ResultError  = "error"
)

// Lock results reported to Recorder.
const (
	LockAcquired = "acquired"
	LockTimeout  = "timeout"
	LockFailed   = "failed"
	LockExpired  = "expired"
	LockLost     = "lost"
)

type nopRecorder struct{}

func (nopRecorder) CacheResult(string, string)     {}
func (nopRecorder) ViewCounted(string)             {}
func (nopRecorder) LockResult(string, string)      {}
func (nopRecorder) LockWait(string, time.Duration) {}

type options struct {
	logger   *zap.Logger
	recorder Recorder
	codec    cache.Codec
	tokens   func() string
}

func defaultOptions() options {
	return options{
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		codec:    cache.NewMsgpackCodec(),
		tokens:   uuid.NewString,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Option customises a decorator.
type Option func(*options)

// WithLogger sets the logger. Decorators log under a named child.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets where outcomes are reported.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithCodec replaces the msgpack codec used for cached results.
func WithCodec(c cache.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithTokenSource replaces the lease token generator.
func WithTokenSource(next func() string) Option {
	return func(o *options) {
		if next != nil {
			o.tokens = next
		}
	}
}
