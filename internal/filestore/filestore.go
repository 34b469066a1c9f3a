package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Supported drivers.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Deleter removes stored attachment blobs by their storage path.
type Deleter interface {
	DeleteFiles(ctx context.Context, paths []string) error
}

// Config selects where attachments are stored.
type Config struct {
	Driver string
	// Root is the base directory of the local driver.
	Root string
	S3   S3Config
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverLocal:
		if c.Root == "" {
			return errors.New("filestore: root must not be empty")
		}
		return nil
	case DriverS3:
		return c.S3.Validate()
	}
	return fmt.Errorf("filestore: unsupported driver %q", c.Driver)
}

// New builds the Deleter selected by cfg.
func New(cfg Config, logger *zap.Logger) (Deleter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverS3 {
		return NewS3(cfg.S3, logger)
	}
	return NewLocal(cfg.Root, logger), nil
}

// Local stores attachments under a directory.
type Local struct {
	root   string
	logger *zap.Logger
}

// NewLocal builds a Local rooted at root.
func NewLocal(root string, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{root: root, logger: logger.Named("filestore")}
}

// DeleteFiles removes every path under the root. Missing files are not an
// error. It keeps going after a failure and returns all of them joined.
func (l *Local) DeleteFiles(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		full, err := l.resolve(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
			continue
		}
		l.logger.Debug("file deleted", zap.String("path", p))
	}
	return errors.Join(errs...)
}

// resolve keeps p inside the root.
func (l *Local) resolve(p string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(p))
	full := filepath.Join(l.root, clean)
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("filestore: path %q is outside the root", p)
	}
	return full, nil
}
