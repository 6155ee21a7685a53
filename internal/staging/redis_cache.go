package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "registration:v1:"

// RedisCache implements Cache on Redis string keys with EX expiry.
type RedisCache struct {
	client redis.UniversalClient
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache constructs a Redis-backed staging cache.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Put(ctx context.Context, phone string, reg Registration, ttl time.Duration) error {
	payload, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+phone, payload, ttl).Err(); err != nil {
		return fmt.Errorf("stage registration: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, phone string) (Registration, error) {
	raw, err := c.client.Get(ctx, keyPrefix+phone).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Registration{}, ErrNotFound
		}
		return Registration{}, fmt.Errorf("load registration: %w", err)
	}
	var reg Registration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return Registration{}, fmt.Errorf("decode registration: %w", err)
	}
	return reg, nil
}

func (c *RedisCache) Delete(ctx context.Context, phone string) error {
	if err := c.client.Del(ctx, keyPrefix+phone).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete registration: %w", err)
	}
	return nil
}
