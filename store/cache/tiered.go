package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// TieredCache implements a three-tier caching strategy:
//   - L1: in-memory cache (fast, small, default)
//   - L2: Redis cache (shared, optional)
//   - L3: loader callback, usually the database
type TieredCache struct {
	l1    *Cache
	l2    RedisCacheInterface
	l2TTL time.Duration
}

// Loader fetches a value from the backing source (L3).
type Loader func(ctx context.Context, key string) ([]byte, error)

// TieredCacheConfig holds the configuration for the tiered cache.
type TieredCacheConfig struct {
	L1MaxItems int
	L1TTL      time.Duration
	L2TTL      time.Duration
	EnableL1   bool
}

// DefaultTieredConfig returns the default tiered cache configuration.
func DefaultTieredConfig() *TieredCacheConfig {
	return &TieredCacheConfig{
		L1MaxItems: 1000,
		L1TTL:      5 * time.Minute,
		L2TTL:      30 * time.Minute,
		EnableL1:   true,
	}
}

// NewTieredCache creates a tiered cache. A nil l2 disables the Redis tier.
func NewTieredCache(config *TieredCacheConfig, l2 RedisCacheInterface) *TieredCache {
	if config == nil {
		config = DefaultTieredConfig()
	}
	tc := &TieredCache{l2: l2, l2TTL: config.L2TTL}
	if config.EnableL1 {
		tc.l1 = New(Config{
			DefaultTTL:      config.L1TTL,
			CleanupInterval: time.Minute,
			MaxItems:        config.L1MaxItems,
		})
	}
	if tc.l2 == nil {
		tc.l2 = NewNilRedisCache()
	}
	return tc
}

// GetOrLoad checks L1, then L2, then calls load and back-fills both tiers.
func (t *TieredCache) GetOrLoad(ctx context.Context, key string, load Loader) ([]byte, error) {
	if t.l1 != nil {
		if value, ok := t.l1.Get(ctx, key); ok {
			return value, nil
		}
	}

	if value, ok := t.l2.Get(ctx, key); ok {
		if t.l1 != nil {
			t.l1.Set(ctx, key, value)
		}
		return value, nil
	}

	if load == nil {
		return nil, errors.Errorf("cache miss for %s", key)
	}
	value, err := load(ctx, key)
	if err != nil {
		return nil, err
	}
	t.Set(ctx, key, value)
	return value, nil
}

// Set stores a value in both tiers.
func (t *TieredCache) Set(ctx context.Context, key string, value []byte) {
	if t.l1 != nil {
		t.l1.Set(ctx, key, value)
	}
	t.l2.SetWithTTL(ctx, key, value, t.l2TTL)
}

// Delete removes a value from both tiers.
func (t *TieredCache) Delete(ctx context.Context, key string) {
	if t.l1 != nil {
		t.l1.Delete(ctx, key)
	}
	t.l2.Delete(ctx, key)
}

// Clear clears both tiers.
func (t *TieredCache) Clear(ctx context.Context) {
	if t.l1 != nil {
		t.l1.Clear(ctx)
	}
	t.l2.Clear(ctx)
}

// Close closes all cache connections.
func (t *TieredCache) Close() error {
	var errs []error
	if err := t.l2.Close(); err != nil {
		errs = append(errs, err)
	}
	if t.l1 != nil {
		if err := t.l1.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("multiple errors: %v", errs)
	}
	return nil
}
