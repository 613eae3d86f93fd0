package consolidation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache shares similarity scores between worker processes.
// All pairs live in one hash so Clear is a single DEL.
// Redis failures degrade to cache misses.
type RedisCache struct {
	client redis.Cmdable
	key    string
	logger *zap.Logger
}

// NewRedisCache wraps an existing client
func NewRedisCache(client redis.Cmdable, key string, log *zap.Logger) *RedisCache {
	return &RedisCache{client: client, key: key, logger: logger.OrNop(log)}
}

// NewRedisCacheFromURL connects to redisURL and verifies the connection
func NewRedisCacheFromURL(ctx context.Context, redisURL, key string, log *zap.Logger) (*RedisCache, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisCache(client, key, log), client, nil
}

func (c *RedisCache) Get(ctx context.Context, a, b string) (float64, bool) {
	score, err := c.client.HGet(ctx, c.key, PairKey(a, b)).Float64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("similarity_cache_read_failed",
				zap.String("task_a", logger.SanitizeID(a)),
				zap.String("task_b", logger.SanitizeID(b)),
				zap.Error(err),
			)
		}
		return 0, false
	}
	return score, true
}

func (c *RedisCache) Put(ctx context.Context, a, b string, score float64) {
	value := strconv.FormatFloat(score, 'f', -1, 64)
	if err := c.client.HSet(ctx, c.key, PairKey(a, b), value).Err(); err != nil {
		c.logger.Warn("similarity_cache_write_failed",
			zap.String("task_a", logger.SanitizeID(a)),
			zap.String("task_b", logger.SanitizeID(b)),
			zap.Error(err),
		)
	}
}

func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to clear similarity cache: %w", err)
	}
	return nil
}

// HealthCheck pings redis
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var _ SimilarityCache = (*RedisCache)(nil)
