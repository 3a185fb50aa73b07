package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_PerKeyBuckets(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "keys do not share a bucket")
}

func TestRateLimiter_PrunesIdleKeys(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{IdleTTL: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("u1")
	rl.Allow("u2")
	require.Equal(t, 2, rl.Len())

	now = now.Add(2 * time.Minute)
	rl.Allow("u3")
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, rl.Wait(context.Background(), "u1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "u1"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	e.POST("/turns", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, rl.Middleware())

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/turns", nil)
		if user != "" {
			req.Header.Set(UserIDHeader, user)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("u1"))
	assert.Equal(t, http.StatusTooManyRequests, send("u1"))
	assert.Equal(t, http.StatusNoContent, send("u2"))
	assert.Equal(t, http.StatusNoContent, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}
