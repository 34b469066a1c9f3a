package decorator

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-community-cache/cache"
)

// ErrLockTimeout matches every *LockTimeoutError. Callers should report it
// as a retryable conflict.
var ErrLockTimeout = errors.New("decorator: lock acquisition timed out")

// LockTimeoutError reports a lock that stayed held by someone else for the
// whole wait budget.
type LockTimeoutError struct {
	Key    string
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock %q not acquired after %s", e.Key, e.Waited)
}

func (e *LockTimeoutError) Is(target error) bool { return target == ErrLockTimeout }

// ConfigError represents a configuration validation error.
type ConfigError = cache.ConfigError
