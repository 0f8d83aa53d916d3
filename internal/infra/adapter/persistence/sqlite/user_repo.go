// Package sqlite implements the repository ports on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"traceback-analyser/internal/domain/entity"
	"traceback-analyser/internal/observability/metrics"
	"traceback-analyser/internal/repository"
)

// DBTX is satisfied by *sql.DB and by the circuit breaker wrapped database.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type UserRepo struct{ db DBTX }

func NewUserRepo(db DBTX) repository.UserRepository {
	return &UserRepo{db: db}
}

const userColumns = `id, email, requests_count, token_usage, created_at, updated_at`

func (repo *UserRepo) GetOrCreate(ctx context.Context, email string) (*entity.User, error) {
	defer observe("sqlite.users.get_or_create", time.Now())

	// the no-op update makes RETURNING yield the existing row on conflict
	const query = `
INSERT INTO users (email)
VALUES (?)
ON CONFLICT (email) DO UPDATE SET email = excluded.email
RETURNING ` + userColumns

	user, err := repo.queryOne(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreate: %w", err)
	}
	return user, nil
}

func (repo *UserRepo) Get(ctx context.Context, email string) (*entity.User, error) {
	defer observe("sqlite.users.get", time.Now())

	const query = `
SELECT ` + userColumns + `
FROM users
WHERE email = ?
LIMIT 1`

	user, err := repo.queryOne(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return user, nil
}

func (repo *UserRepo) AddUsage(ctx context.Context, email string, tokens int) (*entity.User, error) {
	defer observe("sqlite.users.add_usage", time.Now())

	const query = `
INSERT INTO users (email, requests_count, token_usage)
VALUES (?, 1, ?)
ON CONFLICT (email) DO UPDATE SET
    requests_count = users.requests_count + 1,
    token_usage    = users.token_usage + excluded.token_usage,
    updated_at     = CURRENT_TIMESTAMP
RETURNING ` + userColumns

	user, err := repo.queryOne(ctx, query, email, int64(tokens))
	if err != nil {
		return nil, fmt.Errorf("AddUsage: %w", err)
	}
	return user, nil
}

func (repo *UserRepo) ResetAll(ctx context.Context) (int64, error) {
	defer observe("sqlite.users.reset_all", time.Now())

	const query = `
UPDATE users
SET requests_count = 0, token_usage = 0, updated_at = CURRENT_TIMESTAMP
WHERE requests_count <> 0 OR token_usage <> 0`

	res, err := repo.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("ResetAll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ResetAll: RowsAffected: %w", err)
	}
	return n, nil
}

func (repo *UserRepo) queryOne(ctx context.Context, query string, args ...any) (*entity.User, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, entity.ErrNotFound
	}

	var u entity.User
	if err := rows.Scan(&u.ID, &u.Email, &u.RequestsCount, &u.TokenUsage, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func observe(op string, start time.Time) {
	metrics.RecordDBQuery(op, time.Since(start))
}
