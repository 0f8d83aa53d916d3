// Package repository declares the persistence ports implemented by the
// postgres and sqlite adapters.
package repository

import (
	"context"

	"traceback-analyser/internal/domain/entity"
)

// UserRepository stores users and their usage counters.
type UserRepository interface {
	// GetOrCreate returns the user for email, creating it with zero counters.
	GetOrCreate(ctx context.Context, email string) (*entity.User, error)
	// Get returns entity.ErrNotFound when no user has email.
	Get(ctx context.Context, email string) (*entity.User, error)
	// AddUsage atomically adds one request and tokens to the user's counters
	// and returns the updated user. A missing user is created.
	AddUsage(ctx context.Context, email string, tokens int) (*entity.User, error)
	// ResetAll zeroes every user's counters and returns the number of users touched.
	ResetAll(ctx context.Context) (int64, error)
}
