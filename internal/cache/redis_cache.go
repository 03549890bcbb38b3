package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"basreng/backend/internal/domain"
)

type RedisReceiptCache struct {
	client *redis.Client
}

func NewRedisReceiptCache(addr string, password string, db int) *RedisReceiptCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReceiptCache{client: client}
}

func (c *RedisReceiptCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReceiptCache) Close() error {
	return c.client.Close()
}

func (c *RedisReceiptCache) Get(ctx context.Context, code string) (*domain.Receipt, bool, error) {
	val, err := c.client.Get(ctx, ReceiptKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var receipt domain.Receipt
	if err := json.Unmarshal(val, &receipt); err != nil {
		return nil, false, err
	}
	return &receipt, true, nil
}

func (c *RedisReceiptCache) Set(ctx context.Context, code string, value *domain.Receipt, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, ReceiptKey(code), payload, ttl).Err()
}

func (c *RedisReceiptCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, ReceiptKey(code)).Err()
}
