package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
)

// DB guards a *sql.DB with a breaker so repository calls fail fast while the
// database is down. It satisfies the persistence packages' DBTX interface.
type DB struct {
	cb *CircuitBreaker
	db *sql.DB
}

// NewDB wraps db with the DBConfig preset. Context cancellations are not
// counted as database failures.
func NewDB(db *sql.DB) *DB {
	cfg := DBConfig()
	cfg.IsSuccessful = func(err error) bool {
		return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	}
	return NewDBWithConfig(db, cfg)
}

// NewDBWithConfig wraps db with a custom configuration.
func NewDBWithConfig(db *sql.DB, cfg Config) *DB {
	return &DB{cb: New(cfg), db: db}
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return Do(d.cb, func() (*sql.Rows, error) {
		return d.db.QueryContext(ctx, query, args...)
	})
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return Do(d.cb, func() (sql.Result, error) {
		return d.db.ExecContext(ctx, query, args...)
	})
}

// Breaker exposes the breaker for health reporting.
func (d *DB) Breaker() *CircuitBreaker {
	return d.cb
}

// Unwrap returns the guarded *sql.DB.
func (d *DB) Unwrap() *sql.DB {
	return d.db
}
