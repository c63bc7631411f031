// Package idempotency deduplicates inbound deliveries such as provider
// webhooks. A delivery first takes a lock on its key; the response is then
// remembered so a redelivery can be answered without touching the engine.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store records which delivery keys have been seen.
type Store interface {
	// TryLock claims key within scope. It reports false when the key was
	// already claimed and has not expired.
	TryLock(ctx context.Context, scope, key string) (bool, error)
	// Release drops a claim so the delivery can be processed again.
	Release(ctx context.Context, scope, key string) error
	// Remember stores the response produced for key.
	Remember(ctx context.Context, scope, key, value string) error
	// Recall returns the response remembered for key.
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// ==================== Redis ====================

// RedisStore keeps claims in Redis so every replica sees them.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore whose claims expire after ttl.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func lockKey(scope, key string) string { return "idemp:" + scope + ":" + key }
func valueKey(scope, key string) string { return "idemp:map:" + scope + ":" + key }

// TryLock implements Store.
func (s *RedisStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	return s.rdb.SetNX(ctx, lockKey(scope, key), "1", s.ttl).Result()
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, lockKey(scope, key), valueKey(scope, key)).Err()
}

// Remember implements Store.
func (s *RedisStore) Remember(ctx context.Context, scope, key, value string) error {
	return s.rdb.Set(ctx, valueKey(scope, key), value, s.ttl).Err()
}

// Recall implements Store.
func (s *RedisStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, valueKey(scope, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ==================== Memory ====================

type entry struct {
	value     string
	hasValue  bool
	expiresAt time.Time
}

// MemoryStore is a process-local Store for single-instance deployments and
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   func() time.Time
	entries map[string]*entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore whose claims expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]*entry),
	}
}

// live returns the unexpired entry for k. Caller holds mu.
func (s *MemoryStore) live(k string) *entry {
	e, ok := s.entries[k]
	if !ok {
		return nil
	}
	if !s.clock().Before(e.expiresAt) {
		delete(s.entries, k)
		return nil
	}
	return e
}

// TryLock implements Store.
func (s *MemoryStore) TryLock(_ context.Context, scope, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := lockKey(scope, key)
	if s.live(k) != nil {
		return false, nil
	}
	s.entries[k] = &entry{expiresAt: s.clock().Add(s.ttl)}
	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, lockKey(scope, key))
	return nil
}

// Remember implements Store.
func (s *MemoryStore) Remember(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[lockKey(scope, key)] = &entry{
		value:     value,
		hasValue:  true,
		expiresAt: s.clock().Add(s.ttl),
	}
	return nil
}

// Recall implements Store.
func (s *MemoryStore) Recall(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(lockKey(scope, key))
	if e == nil || !e.hasValue {
		return "", false, nil
	}
	return e.value, true, nil
}
