package reconcile

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/goliatone/go-community-cache/cache"
)

// Config holds the schedule and the key layout of the reconciled entities.
type Config struct {
	// Prefix is the cache prefix whose pending and history sets are read.
	Prefix string
	// EntityBase is the cache key stem followed by the entity id, e.g.
	// "post:postid" for keys like "post:postid:42".
	EntityBase string

	FlushSpec string
	ResetSpec string
	PurgeSpec string

	// Retention is how long soft deleted rows are kept before purge.
	Retention time.Duration
	// LockLease bounds a task run without keep-alive renewal. Runs renew
	// it while they are still working.
	LockLease time.Duration
	// Location is the time zone of the cron specs. Nil means local time.
	Location *time.Location
}

// DefaultConfig returns the schedule for posts: flush every 10 minutes,
// reset at midnight, purge at 04:00 with a 7 day retention.
func DefaultConfig() Config {
	return Config{
		Prefix:     "post",
		EntityBase: "post:postid",
		FlushSpec:  "@every 10m",
		ResetSpec:  "0 0 * * *",
		PurgeSpec:  "0 4 * * *",
		Retention:  7 * 24 * time.Hour,
		LockLease:  time.Minute,
	}
}

// Validate checks the configuration and parses every spec.
func (c Config) Validate() error {
	if c.Prefix == "" {
		return &cache.ConfigError{Field: "Prefix", Message: "must not be empty"}
	}
	if c.EntityBase == "" {
		return &cache.ConfigError{Field: "EntityBase", Message: "must not be empty"}
	}
	specs := []struct{ field, spec string }{
		{"FlushSpec", c.FlushSpec},
		{"ResetSpec", c.ResetSpec},
		{"PurgeSpec", c.PurgeSpec},
	}
	for _, s := range specs {
		if _, err := cron.ParseStandard(s.spec); err != nil {
			return &cache.ConfigError{Field: s.field, Message: err.Error()}
		}
	}
	if c.Retention <= 0 {
		return &cache.ConfigError{Field: "Retention", Message: "must be greater than 0"}
	}
	if c.LockLease <= 0 {
		return &cache.ConfigError{Field: "LockLease", Message: "must be greater than 0"}
	}
	return nil
}
