package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tokokita/backend/internal/domain"
)

type RedisHistoryCache struct {
	client *redis.Client
}

func NewRedisHistoryCache(addr string, password string, db int) *RedisHistoryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisHistoryCache{client: client}
}

func (c *RedisHistoryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisHistoryCache) Close() error {
	return c.client.Close()
}

// SalesPageKey builds the cache key for one page of a tenant's sales history.
func SalesPageKey(tenantID string, page int, pageSize int) string {
	return "history:sales:" + tenantID + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(pageSize)
}

func (c *RedisHistoryCache) GetSalesPage(ctx context.Context, key string) (*domain.SalesPage, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var page domain.SalesPage
	if err := json.Unmarshal([]byte(val), &page); err != nil {
		return nil, false, err
	}
	return &page, true, nil
}

func (c *RedisHistoryCache) SetSalesPage(ctx context.Context, key string, value *domain.SalesPage, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisHistoryCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	iter := c.client.Scan(ctx, 0, "history:sales:"+tenantID+":*", 100).Iterator()
	keys := make([]string, 0, 16)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
