package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/patient-predict-server/internal/domain"
)

const redisKeyPrefix = "patient-predict:result:"

// ResultCache memoises predictions per (artifact version, input). The
// in-process LRU is always consulted first; Redis, when configured, shares
// results between replicas.
type ResultCache struct {
	local  *expirable.LRU[string, domain.PredictionResult]
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewResultCache creates the cache. It returns nil when caching is disabled.
func NewResultCache(config domain.CacheConfig, logger *logrus.Logger) (*ResultCache, error) {
	if !config.Enabled {
		return nil, nil
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}

	c := &ResultCache{
		local:  expirable.NewLRU[string, domain.PredictionResult](config.MaxItems, nil, config.TTL),
		ttl:    config.TTL,
		logger: logger,
	}

	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.redis = client
	}

	return c, nil
}

// CacheKey derives the cache key of a submission under an artifact version.
func CacheKey(version string, input *domain.PatientInput) string {
	sum := sha256.Sum256([]byte(version + "\x00" + input.CacheKey()))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached result. Redis errors count as misses.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.PredictionResult, bool) {
	if result, ok := c.local.Get(key); ok {
		return &result, true
	}
	if c.redis == nil {
		return nil, false
	}

	val, err := c.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Result cache Redis lookup failed")
		return nil, false
	}

	var result domain.PredictionResult
	if err := json.Unmarshal(val, &result); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, redisKeyPrefix+key)
		return nil, false
	}
	c.local.Add(key, result)
	return &result, true
}

// Set stores a result in every tier.
func (c *ResultCache) Set(ctx context.Context, key string, result *domain.PredictionResult) {
	c.local.Add(key, *result)
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal result for cache")
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Result cache Redis write failed")
	}
}

// Len returns the number of results held in process.
func (c *ResultCache) Len() int {
	return c.local.Len()
}

// Purge empties the in-process tier.
func (c *ResultCache) Purge() {
	c.local.Purge()
}

// Close releases the Redis client.
func (c *ResultCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
