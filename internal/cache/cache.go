package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/infrachain/server/internal/config"
	"github.com/infrachain/server/internal/logger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "infrachain:chain:"

// Cache 链上只读数据缓存
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// RedisCache 基于 redis 的 JSON 缓存
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// OpenRedis 连接 redis 并检查连通性
func OpenRedis(cfg config.RedisConfig) (*RedisCache, error) {
	r := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return NewRedisCache(r, time.Duration(cfg.TTL)*time.Second), nil
}

// NewRedisCache 使用已有客户端创建缓存
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get 读取缓存，未命中返回 false
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set 写入缓存
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err()
}

// Close 关闭连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Remember 先读缓存，未命中时调用 load 并回写。缓存为空或读写失败时直接调用 load。
func Remember[T any](ctx context.Context, c Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}

	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn("Cache read %s failed, bypassing: %v", key, err)
	}
	if hit {
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if err := c.Set(ctx, key, value); err != nil {
		logger.Warn("Cache write %s failed: %v", key, err)
	}
	return value, nil
}
