package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLastSeen(t *testing.T) (*RedisLastSeen, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLastSeenFromClient(client), mr
}

func TestRedisLastSeen_TouchAndGet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestLastSeen(t)

	a, b, never := uuid.New(), uuid.New(), uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Touch(ctx, a, at))
	require.NoError(t, store.Touch(ctx, b, at.Add(time.Minute)))

	got, err := store.Get(ctx, []uuid.UUID{a, b, never})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, at.Equal(got[a]))
	assert.True(t, at.Add(time.Minute).Equal(got[b]))
	_, ok := got[never]
	assert.False(t, ok)

	assert.True(t, mr.Exists("im:lastseen:"+a.String()))
	assert.Greater(t, mr.TTL("im:lastseen:"+a.String()), time.Duration(0))
}

func TestRedisLastSeen_EmptyInput(t *testing.T) {
	store, _ := newTestLastSeen(t)
	got, err := store.Get(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewRedisLastSeen(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisLastSeen(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer store.Close()

	_, err = NewRedisLastSeen(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestNopLastSeen(t *testing.T) {
	var s LastSeenStore = NopLastSeen{}
	require.NoError(t, s.Touch(context.Background(), uuid.New(), time.Now()))
	got, err := s.Get(context.Background(), []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, got)
}
