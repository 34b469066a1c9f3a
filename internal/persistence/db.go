package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var (
	// ErrNotFound is returned when a row is absent or soft deleted.
	ErrNotFound = errors.New("persistence: not found")

	// ErrUniqueViolation wraps driver errors for a violated unique index.
	ErrUniqueViolation = errors.New("persistence: unique constraint violated")
)

// Config selects and tunes the database connection.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("persistence: unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return errors.New("persistence: DSN must not be empty")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("persistence: connection limits must be non-negative")
	}
	return nil
}

// Open connects and wraps the pool with the matching bun dialect. SQLite
// has no row locks, so its pool is limited to one connection and
// transactions run one at a time.
func Open(cfg Config, logger *zap.Logger) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	var db *bun.DB
	switch cfg.Driver {
	case DriverPostgres:
		db = bun.NewDB(sqldb, pgdialect.New())
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	case DriverSQLite:
		db = bun.NewDB(sqldb, sqlitedialect.New())
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Named("db").Info("database opened", zap.String("driver", cfg.Driver))
	return db, nil
}

// CreateSchema creates every table and the like uniqueness index.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*Like)(nil)).
		Index("ux_tbl_likes_subject_member").
		Unique().
		IfNotExists().
		Column("subject_type", "subject_id", "member_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create like index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*Post)(nil)).
		Index("ix_tbl_posts_group").
		IfNotExists().
		Column("group_id", "disabled").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create post index: %w", err)
	}
	return nil
}

// ForUpdate adds a row lock to q on dialects that support one. On SQLite the
// single connection pool already serializes transactions.
func ForUpdate(db bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
	if db.Dialect().Name() == dialect.PG {
		return q.For("UPDATE")
	}
	return q
}

// IsUniqueViolation reports whether err comes from a violated unique index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUniqueViolation) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
