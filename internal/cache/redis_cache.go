package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"icepos/backend/internal/domain"
)

type RedisStatusCache struct {
	client *redis.Client
}

func NewRedisStatusCache(addr string, password string, db int) *RedisStatusCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStatusCache{client: client}
}

func (c *RedisStatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStatusCache) Close() error {
	return c.client.Close()
}

func (c *RedisStatusCache) Get(ctx context.Context, key string) (*domain.LiveShiftStatus, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var status domain.LiveShiftStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, false, err
	}
	return &status, true, nil
}

func (c *RedisStatusCache) Set(ctx context.Context, key string, value *domain.LiveShiftStatus, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
