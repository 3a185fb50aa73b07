package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the L1 memory cache configuration.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	MaxItems        int
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-memory TTL cache bounded by MaxItems.
type Cache struct {
	config Config
	data   sync.Map
	count  atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a new memory cache and starts its cleanup loop.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}
	c := &Cache{
		config: config,
		stop:   make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	c.SetWithTTL(ctx, key, value, c.config.DefaultTTL)
}

func (c *Cache) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	if _, loaded := c.data.Load(key); !loaded && c.count.Load() >= int64(c.config.MaxItems) {
		c.evictOne()
	}
	if _, loaded := c.data.Swap(key, item{value: value, expiresAt: time.Now().Add(ttl)}); !loaded {
		c.count.Add(1)
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	it := v.(item)
	if time.Now().After(it.expiresAt) {
		if c.data.CompareAndDelete(key, v) {
			c.count.Add(-1)
		}
		return nil, false
	}
	return it.value, true
}

func (c *Cache) Delete(_ context.Context, key string) {
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.count.Add(-1)
	}
}

func (c *Cache) Clear(_ context.Context) {
	c.data.Range(func(key, _ any) bool {
		if _, loaded := c.data.LoadAndDelete(key); loaded {
			c.count.Add(-1)
		}
		return true
	})
}

// Size returns the number of entries, including expired ones not yet cleaned up.
func (c *Cache) Size() int64 {
	return c.count.Load()
}

func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// evictOne drops the entry closest to expiry.
func (c *Cache) evictOne() {
	var oldestKey any
	var oldest time.Time
	c.data.Range(func(key, v any) bool {
		it := v.(item)
		if oldestKey == nil || it.expiresAt.Before(oldest) {
			oldestKey, oldest = key, it.expiresAt
		}
		return true
	})
	if oldestKey != nil {
		if _, loaded := c.data.LoadAndDelete(oldestKey); loaded {
			c.count.Add(-1)
		}
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.data.Range(func(key, v any) bool {
				if now.After(v.(item).expiresAt) {
					if c.data.CompareAndDelete(key, v) {
						c.count.Add(-1)
					}
				}
				return true
			})
		}
	}
}
