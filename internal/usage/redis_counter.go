package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter stores counters in Redis with INCR and EXPIREAT.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCounter creates a RedisCounter. prefix is prepended to every key.
func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

// Increment adds one to key and sets its expiry in the same transaction.
func (c *RedisCounter) Increment(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, c.prefix+key)
		pipe.ExpireAt(ctx, c.prefix+key, expireAt)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Count returns the value at key.
func (c *RedisCounter) Count(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, c.prefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, nil
}

var _ Counter = (*RedisCounter)(nil)
