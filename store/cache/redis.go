package cache

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisCacheInterface defines the interface for the Redis L2 cache.
// Redis is optional and only needed for multi-instance deployments.
type RedisCacheInterface interface {
	Set(ctx context.Context, key string, value []byte)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration)
	Get(ctx context.Context, key string) ([]byte, bool)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	Close() error
}

// RedisCacheConfig holds the Redis connection configuration.
type RedisCacheConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	DefaultTTL   time.Duration
	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() *RedisCacheConfig {
	return &RedisCacheConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "chatturn:",
		DefaultTTL:   30 * time.Minute,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisConfigFromEnv creates Redis config from environment variables.
// Environment variables:
//   - CHATTURN_CACHE_REDIS_ADDR: Redis address (default: localhost:6379)
//   - CHATTURN_CACHE_REDIS_PASSWORD: Redis password (default: "")
//   - CHATTURN_CACHE_REDIS_DB: Redis DB number (default: 0)
//   - CHATTURN_CACHE_REDIS_PREFIX: Key prefix (default: "chatturn:")
func RedisConfigFromEnv() *RedisCacheConfig {
	config := DefaultRedisConfig()

	if addr := os.Getenv("CHATTURN_CACHE_REDIS_ADDR"); addr != "" {
		config.Addr = addr
	}
	if password := os.Getenv("CHATTURN_CACHE_REDIS_PASSWORD"); password != "" {
		config.Password = password
	}
	if db, err := strconv.Atoi(os.Getenv("CHATTURN_CACHE_REDIS_DB")); err == nil {
		config.DB = db
	}
	if prefix := os.Getenv("CHATTURN_CACHE_REDIS_PREFIX"); prefix != "" {
		config.KeyPrefix = prefix
	}

	return config
}

// IsRedisEnabled reports whether CHATTURN_CACHE_REDIS_ADDR is set.
func IsRedisEnabled() bool {
	return os.Getenv("CHATTURN_CACHE_REDIS_ADDR") != ""
}

// RedisCache is a Redis-based cache implementation for L2 caching.
type RedisCache struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
}

var _ RedisCacheInterface = (*RedisCache)(nil)

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, config *RedisCacheConfig) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	slog.Info("Redis cache connected", "addr", config.Addr)

	return &RedisCache{
		client:     client,
		keyPrefix:  config.KeyPrefix,
		defaultTTL: config.DefaultTTL,
	}, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte) {
	r.SetWithTTL(ctx, key, value, r.defaultTTL)
}

func (r *RedisCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, r.fullKey(key), value, ttl).Err(); err != nil {
		slog.Warn("failed to set cache value", "key", key, "error", err)
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("failed to get cache value", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (r *RedisCache) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.fullKey(key)).Err(); err != nil {
		slog.Warn("failed to delete cache value", "key", key, "error", err)
	}
}

func (r *RedisCache) Clear(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			r.client.Del(ctx, keys...)
			keys = keys[:0]
		}
	}
	if len(keys) > 0 {
		r.client.Del(ctx, keys...)
	}
	if err := iter.Err(); err != nil {
		slog.Warn("failed to scan cache keys", "error", err)
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) fullKey(key string) string {
	return r.keyPrefix + key
}

// NilRedisCache is a no-op implementation of RedisCacheInterface.
type NilRedisCache struct{}

func NewNilRedisCache() *NilRedisCache {
	return &NilRedisCache{}
}

func (n *NilRedisCache) Set(ctx context.Context, key string, value []byte) {}

func (n *NilRedisCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
}

func (n *NilRedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	return nil, false
}

func (n *NilRedisCache) Delete(ctx context.Context, key string) {}

func (n *NilRedisCache) Clear(ctx context.Context) {}

func (n *NilRedisCache) Close() error {
	return nil
}
