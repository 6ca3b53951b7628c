package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/i474232898/surfvault/internal/weather"
)

const keyPrefix = "surfvault:series:"

// redisClient is the subset of the go-redis client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisCache stores series as JSON in Redis. Cache errors are logged and
// treated as misses.
type RedisCache struct {
	client redisClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration, log *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return newRedisCache(client, ttl, log), nil
}

func newRedisCache(client redisClient, ttl time.Duration, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*weather.HourlySeries, bool) {
	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	series, err := decodeSeries(raw)
	if err != nil {
		c.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return series, true
}

func (c *RedisCache) Set(ctx context.Context, key string, series *weather.HourlySeries) {
	raw, err := json.Marshal(series)
	if err != nil {
		c.log.Warn("encoding series for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKey(key), raw, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(key string) string {
	return keyPrefix + key
}

func decodeSeries(raw []byte) (*weather.HourlySeries, error) {
	var s weather.HourlySeries
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Time == nil {
		return nil, errors.New("cached series has no time array")
	}
	return &s, nil
}
