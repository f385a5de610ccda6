package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LastSeenStore remembers when each user last went offline.
type LastSeenStore interface {
	Touch(ctx context.Context, userID uuid.UUID, at time.Time) error
	// Get returns the known timestamps for ids. Users never seen are absent.
	Get(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]time.Time, error)
}

// lastSeenTTL bounds how long an idle account keeps a key around.
const lastSeenTTL = 90 * 24 * time.Hour

func lastSeenKey(userID uuid.UUID) string { return "im:lastseen:" + userID.String() }

// RedisLastSeen stores unix-millisecond timestamps under im:lastseen:<user>.
type RedisLastSeen struct {
	client *redis.Client
}

// NewRedisLastSeen connects to redisURL and verifies it with a ping.
func NewRedisLastSeen(ctx context.Context, redisURL string) (*RedisLastSeen, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisLastSeen{client: client}, nil
}

func NewRedisLastSeenFromClient(client *redis.Client) *RedisLastSeen {
	return &RedisLastSeen{client: client}
}

func (s *RedisLastSeen) Touch(ctx context.Context, userID uuid.UUID, at time.Time) error {
	err := s.client.Set(ctx, lastSeenKey(userID), at.UnixMilli(), lastSeenTTL).Err()
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}

func (s *RedisLastSeen) Get(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]time.Time, error) {
	out := make(map[uuid.UUID]time.Time, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = lastSeenKey(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last seen: %w", err)
	}

	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			continue
		}
		out[userIDs[i]] = time.UnixMilli(ms).UTC()
	}
	return out, nil
}

func (s *RedisLastSeen) Close() error {
	return s.client.Close()
}

// NopLastSeen is used when Redis is not configured.
type NopLastSeen struct{}

func (NopLastSeen) Touch(context.Context, uuid.UUID, time.Time) error { return nil }

func (NopLastSeen) Get(context.Context, []uuid.UUID) (map[uuid.UUID]time.Time, error) {
	return map[uuid.UUID]time.Time{}, nil
}
