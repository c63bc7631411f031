package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"redis": func(t *testing.T) Store {
			s, _ := newRedisStore(t, time.Minute)
			return s
		},
		"memory": func(*testing.T) Store { return NewMemoryStore(time.Minute) },
	}

	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)

			ok, err := s.TryLock(ctx, "webhook", "evt_1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.TryLock(ctx, "webhook", "evt_1")
			require.NoError(t, err)
			assert.False(t, ok, "second claim must fail")

			ok, err = s.TryLock(ctx, "other", "evt_1")
			require.NoError(t, err)
			assert.True(t, ok, "scopes are independent")

			_, found, err := s.Recall(ctx, "webhook", "evt_1")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Remember(ctx, "webhook", "evt_1", `{"applied":true}`))
			val, found, err := s.Recall(ctx, "webhook", "evt_1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `{"applied":true}`, val)

			require.NoError(t, s.Release(ctx, "webhook", "evt_1"))
			ok, err = s.TryLock(ctx, "webhook", "evt_1")
			require.NoError(t, err)
			assert.True(t, ok, "released key can be claimed again")
		})
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)

	ok, err := s.TryLock(ctx, "webhook", "evt_1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = s.TryLock(ctx, "webhook", "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.clock = func() time.Time { return now }

	ok, err := s.TryLock(ctx, "webhook", "evt_1")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(time.Minute)

	ok, err = s.TryLock(ctx, "webhook", "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)
}
