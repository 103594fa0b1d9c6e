package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceTTL = 60 * time.Second

// RedisStore handles Redis operations for rate limiting and presence.
// It is optional: when Redis is not configured the server runs without
// rate limiting and presence tracking.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that needs pipelines.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// MarkOnline records that a user currently holds an open socket.
// The mark decays unless refreshed, so a crashed client drops offline.
func (s *RedisStore) MarkOnline(ctx context.Context, userID string) error {
	return s.client.Set(ctx, presenceKey(userID), "1", presenceTTL).Err()
}

// MarkOffline clears a user's presence mark.
func (s *RedisStore) MarkOffline(ctx context.Context, userID string) error {
	return s.client.Del(ctx, presenceKey(userID)).Err()
}

// IsOnline reports whether a user has an active presence mark.
func (s *RedisStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
