package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore stores values in Redis. Expiration, when set, is applied as a
// Redis TTL in addition to any freshness check done by callers.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	expiration time.Duration
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Client redis.UniversalClient

	// Prefix is prepended to every key, e.g. "driveless:".
	Prefix string

	// Expiration is the Redis TTL for written keys. Zero keeps keys forever.
	Expiration time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	return &RedisStore{
		client:     cfg.Client,
		prefix:     cfg.Prefix,
		expiration: cfg.Expiration,
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return client, nil
}

// Get returns the value at key or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Set writes value at key.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.expiration).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Pinger = (*RedisStore)(nil)
)
