// Package entity holds the domain types shared by the quota, analysis and
// transport layers.
package entity

import (
	"time"
)

// User is an authenticated caller together with its usage counters.
//
// RequestsCount and TokenUsage only grow between quota resets; both are
// updated in one statement per completed analysis.
type User struct {
	ID            int64
	Email         string
	RequestsCount int
	TokenUsage    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Usage is the cost of one completed analysis.
type Usage struct {
	InputTokens     int
	GeneratedTokens int
}

// Total returns the tokens charged against the user's quota.
func (u Usage) Total() int {
	return u.InputTokens + u.GeneratedTokens
}
