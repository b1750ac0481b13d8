package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// RedisCache is a ResponseCache backed by a Redis server. An unreachable
// backend degrades to a miss; it never fails a query.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects a cache to the Redis server at addr.
func NewRedisCache(addr, password string, db int, logger *zap.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: client, logger: logger}
}

// Ping checks backend reachability. Useful at startup; a failure here does
// not prevent serving.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (models.QueryResponse, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed, treating as miss", zap.Error(err))
		}
		return models.QueryResponse{}, false
	}
	var resp models.QueryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Warn("cache entry corrupt, treating as miss", zap.Error(err))
		return models.QueryResponse{}, false
	}
	return resp, true
}

func (c *RedisCache) Put(ctx context.Context, key string, value models.QueryResponse, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache entry not serialisable", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn("cache write failed, entry dropped", zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
