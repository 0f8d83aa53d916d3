package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps revoked token ids and cached user info.
type TokenStore interface {
	RevocationChecker
	// Revoke marks tokenID revoked until the token would have expired anyway.
	Revoke(ctx context.Context, tokenID string, until time.Time) error

	GetUserInfo(ctx context.Context, email string) ([]byte, bool, error)
	SetUserInfo(ctx context.Context, email string, data []byte, ttl time.Duration) error
	DeleteUserInfo(ctx context.Context, email string) error

	Ping(ctx context.Context) error
}

// DefaultKeyPrefix namespaces the Redis keys of this service.
const DefaultKeyPrefix = "traceback:"

// RedisTokenStore is a TokenStore backed by Redis. Keys expire on their own,
// so no cleanup job is needed.
type RedisTokenStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTokenStore creates a store; an empty prefix uses DefaultKeyPrefix.
func NewRedisTokenStore(client redis.UniversalClient, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisTokenStore{client: client, prefix: prefix}
}

func (s *RedisTokenStore) revokedKey(id string) string { return s.prefix + "revoked:" + id }
func (s *RedisTokenStore) userKey(email string) string { return s.prefix + "userinfo:" + email }

func (s *RedisTokenStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.revokedKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *RedisTokenStore) GetUserInfo(ctx context.Context, email string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.userKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get user info: %w", err)
	}
	return data, true, nil
}

func (s *RedisTokenStore) SetUserInfo(ctx context.Context, email string, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.userKey(email), data, ttl).Err(); err != nil {
		return fmt.Errorf("set user info: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) DeleteUserInfo(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, s.userKey(email)).Err(); err != nil {
		return fmt.Errorf("delete user info: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// memorySweepInterval is the minimum time between two sweeps of expired
// entries.
const memorySweepInterval = time.Minute

// MemoryTokenStore is the single-instance TokenStore used when no Redis
// address is configured. Expired entries are dropped on access and swept on
// writes, at most once per memorySweepInterval.
type MemoryTokenStore struct {
	mu        sync.Mutex
	revoked   map[string]time.Time
	userInfo  map[string]memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		revoked:  make(map[string]time.Time),
		userInfo: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (s *MemoryTokenStore) Revoke(_ context.Context, tokenID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweepLocked(now)
	if until.After(now) {
		s.revoked[tokenID] = until
	}
	return nil
}

func (s *MemoryTokenStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !until.After(s.now()) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryTokenStore) GetUserInfo(_ context.Context, email string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.userInfo[email]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.After(s.now()) {
		delete(s.userInfo, email)
		return nil, false, nil
	}
	return e.data, true, nil
}

func (s *MemoryTokenStore) SetUserInfo(_ context.Context, email string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweepLocked(now)
	s.userInfo[email] = memoryEntry{data: append([]byte(nil), data...), expires: now.Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) DeleteUserInfo(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userInfo, email)
	return nil
}

func (s *MemoryTokenStore) Ping(context.Context) error { return nil }

// sweepLocked drops every expired entry. s.mu must be held.
func (s *MemoryTokenStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < memorySweepInterval {
		return
	}
	s.lastSweep = now
	for id, until := range s.revoked {
		if !until.After(now) {
			delete(s.revoked, id)
		}
	}
	for email, e := range s.userInfo {
		if !e.expires.After(now) {
			delete(s.userInfo, email)
		}
	}
}
