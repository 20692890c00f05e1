package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"content-harvester/pkg/config"
	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

// RedisResultCache stores aggregated search results in Redis as JSON with a TTL.
// It satisfies search.ResultCache.
type RedisResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisResultCache connects lazily; the first command reports an unreachable server.
func NewRedisResultCache(cfg config.CacheConfig) *RedisResultCache {
	return &RedisResultCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
	}
}

// Ping checks the connection
func (c *RedisResultCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", utils.ErrCache, err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisResultCache) Close() error {
	return c.client.Close()
}

// Key maps a search cache key to the Redis key. Keywords are hashed to keep keys short and ASCII.
func (c *RedisResultCache) Key(key string) string {
	return c.prefix + utils.ContentHash(key)
}

// Get returns (nil, false, nil) on a miss.
func (c *RedisResultCache) Get(ctx context.Context, key string) ([]models.SearchResult, bool, error) {
	val, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: get: %w", utils.ErrCache, err)
	}

	var results []models.SearchResult
	if err := json.Unmarshal(val, &results); err != nil {
		return nil, false, fmt.Errorf("%w: decoding cached JSON: %w", utils.ErrParsing, err)
	}
	return results, true, nil
}

func (c *RedisResultCache) Set(ctx context.Context, key string, results []models.SearchResult) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.Key(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %w", utils.ErrCache, err)
	}
	return nil
}
