package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestKey identifies the caller for quota accounting. Requests carrying
// an X-User-Id header are keyed by user so their quota follows them across
// networks; anonymous requests are keyed by client IP.
func RequestKey(c *gin.Context) string {
	if userID := strings.TrimSpace(c.GetHeader("X-User-Id")); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// RouteRateLimitMiddleware enforces a dedicated quota on a single route.
func (rl *RateLimiter) RouteRateLimitMiddleware(route string, limit Rate) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:route:%s:%s", route, RequestKey(c))
		rl.enforce(c, route, key, limit)
	}
}

// DefaultRateLimitMiddleware enforces the catch-all quota on routes without
// a dedicated one.
func (rl *RateLimiter) DefaultRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:default:" + RequestKey(c)
		rl.enforce(c, "default", key, rl.DefaultRate())
	}
}

func (rl *RateLimiter) enforce(c *gin.Context, route, key string, limit Rate) {
	result, err := rl.Allow(c.Request.Context(), key, limit)
	if err != nil {
		// A failing limiter never blocks traffic.
		slog.Error("Rate limit check failed", "route", route, "error", err)
		c.Next()
		return
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

	if !result.Allowed {
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitBlock(route)
		}

		retryAfter := int(result.RetryAfter / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))

		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"message":     fmt.Sprintf("Too many requests. The limit is %d per %s", limit.Limit, periodLabel(limit.Period)),
			"retry_after": retryAfter,
			"reset_at":    result.ResetAt.Unix(),
		})
		c.Abort()
		return
	}

	c.Next()
}

func periodLabel(period time.Duration) string {
	switch period {
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	case 24 * time.Hour:
		return "day"
	default:
		return period.String()
	}
}
