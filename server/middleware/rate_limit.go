// Package middleware holds echo middleware shared by the HTTP routes.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// UserIDHeader carries the caller identity on chat requests.
const UserIDHeader = "X-User-ID"

// RateLimitConfig sizes the per-key token buckets.
type RateLimitConfig struct {
	// RequestsPerSecond is the refill rate. Zero means 2/s.
	RequestsPerSecond float64
	// Burst is the bucket size. Zero means 10.
	Burst int
	// IdleTTL drops limiters unused for this long. Zero means 10 minutes.
	IdleTTL time.Duration
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per key.
type RateLimiter struct {
	mu     sync.Mutex
	cfg    RateLimitConfig
	limits map[string]*keyedLimiter
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		cfg:    cfg,
		limits: make(map[string]*keyedLimiter),
		now:    time.Now,
	}
}

// getLimiter gets or creates a limiter for the given key, pruning idle ones.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if l, ok := rl.limits[key]; ok {
		l.lastSeen = now
		return l.limiter
	}
	for k, l := range rl.limits {
		if now.Sub(l.lastSeen) > rl.cfg.IdleTTL {
			delete(rl.limits, k)
		}
	}

	l := &keyedLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
		lastSeen: now,
	}
	rl.limits[key] = l
	return l.limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Wait blocks until a request is allowed for key or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.getLimiter(key).Wait(ctx)
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}

// Middleware rejects requests over the limit with 429. Requests are keyed by
// the user id header, falling back to the client IP.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(UserIDHeader)
			if key == "" {
				key = "ip:" + c.RealIP()
			}
			if !rl.Allow(key) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
