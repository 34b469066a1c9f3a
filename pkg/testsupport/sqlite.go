package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-community-cache/cache"
	"github.com/goliatone/go-community-cache/internal/persistence"
)

var dbSeq atomic.Int64

// NewSQLiteDB opens a private in-memory SQLite database with the schema
// created. It is closed when the test ends.
func NewSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := persistence.Open(persistence.Config{Driver: persistence.DriverSQLite, DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := persistence.CreateSchema(context.Background(), db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// NewMemoryStore returns an in-process cache.Store. A nil clock uses the
// wall clock.
func NewMemoryStore(t *testing.T, clock *Clock) cache.Store {
	t.Helper()

	var opts []cache.MemoryOption
	if clock != nil {
		opts = append(opts, cache.WithClock(clock.Now))
	}
	store, err := cache.NewMemoryStore(cache.DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}
	return store
}
