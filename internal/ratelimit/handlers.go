package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleRateLimitStatus reports the quotas that apply to the calling
// identity.
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"identity": RequestKey(c),
			"limits": gin.H{
				"signup":    describeRate(SignupRate),
				"login":     describeRate(LoginRate),
				"screening": describeRate(ScreeningRate),
				"default":   describeRate(rl.DefaultRate()),
			},
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func describeRate(r Rate) gin.H {
	return gin.H{
		"limit":  r.Limit,
		"period": periodLabel(r.Period),
	}
}

// HandleAdminRateLimits returns limiter state for operators.
func (rl *RateLimiter) HandleAdminRateLimits() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		keyCount, err := rl.GetKeyCount(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to get key count",
			})
			return
		}

		var rateLimitMetrics map[string]interface{}
		if rl.metrics != nil {
			rateLimitMetrics = rl.metrics.GetRateLimitStats()
		}

		c.JSON(http.StatusOK, gin.H{
			"total_keys":    keyCount,
			"limiter_stats": rl.GetStats(),
			"metrics":       rateLimitMetrics,
			"timestamp":     time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminInvalidateUser clears all quota windows for one user.
func (rl *RateLimiter) HandleAdminInvalidateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userID")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "user ID is required",
			})
			return
		}

		if err := rl.InvalidateUser(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to invalidate user rate limits",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "user rate limits invalidated successfully",
			"user_id":   userID,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminInvalidateIP clears all quota windows for one IP address.
func (rl *RateLimiter) HandleAdminInvalidateIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Param("ip")
		if ip == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "IP address is required",
			})
			return
		}

		if err := rl.InvalidateIP(c.Request.Context(), ip); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to invalidate IP rate limits",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "IP rate limits invalidated successfully",
			"ip":        ip,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminRateLimitMetrics returns block and fallback counters.
func (rl *RateLimiter) HandleAdminRateLimitMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.metrics == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "metrics not configured",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"rate_limit_metrics": rl.metrics.GetRateLimitStats(),
			"timestamp":          time.Now().Format(time.RFC3339),
		})
	}
}
