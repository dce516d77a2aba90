package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ossopulse/ossopulse/internal/monitoring"
)

// Rate describes a request quota over a rolling window.
type Rate struct {
	Limit  int
	Period time.Duration
}

// Route quotas for the service's published limits. Routes without a
// dedicated quota share the default one from Config.
var (
	SignupRate    = Rate{Limit: 5, Period: time.Minute}
	LoginRate     = Rate{Limit: 10, Period: time.Minute}
	ScreeningRate = Rate{Limit: 5, Period: time.Minute}
)

// Config controls quota enforcement across all routes.
type Config struct {
	// DefaultPerHour is the catch-all quota for routes without their own.
	DefaultPerHour int
	// BurstMultiplier widens the Redis window to absorb short spikes.
	// The in-process fallback always uses the exact limit.
	BurstMultiplier int
	// EnableFallback switches to per-process token buckets when Redis is
	// unavailable. With it disabled, checks fail open instead.
	EnableFallback bool
	// CleanupInterval bounds how long an idle fallback bucket is kept.
	CleanupInterval time.Duration
}

// DefaultConfig returns the production quota configuration.
func DefaultConfig() Config {
	return Config{
		DefaultPerHour:  100,
		BurstMultiplier: 1,
		EnableFallback:  true,
		CleanupInterval: time.Hour,
	}
}

// Result reports the outcome of a single quota check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type fallbackEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces request quotas with a Redis sliding window shared
// across instances, degrading to per-process token buckets when Redis is
// unreachable.
type RateLimiter struct {
	redisClient *RedisClient
	config      Config
	metrics     *monitoring.Metrics
	rateLimiter *redis_rate.Limiter

	fallbackMutex    sync.Mutex
	fallbackLimiters map[string]*fallbackEntry

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewRateLimiter creates a rate limiter backed by redisClient. A disabled
// client is valid and routes every check through the in-process fallback.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*fallbackEntry),
		stopCleanup:      make(chan struct{}),
	}

	if redisClient != nil && redisClient.IsEnabled() {
		rl.rateLimiter = redis_rate.NewLimiter(redisClient.GetClient())
	}

	go rl.cleanupLoop()
	return rl
}

// DefaultRate is the quota applied to routes without a dedicated one.
func (rl *RateLimiter) DefaultRate() Rate {
	return Rate{Limit: rl.config.DefaultPerHour, Period: time.Hour}
}

// Allow records one request against key and reports whether it fits within
// limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit Rate) (*Result, error) {
	if rl.rateLimiter != nil {
		result, err := rl.allowRedis(ctx, key, limit)
		if err == nil {
			return result, nil
		}

		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
		slog.Warn("Redis rate limit check failed", "key", key, "error", err)

		if !rl.config.EnableFallback {
			// Fail open rather than refusing screenings.
			return &Result{
				Allowed:   true,
				Limit:     limit.Limit,
				Remaining: limit.Limit,
				ResetAt:   time.Now().Add(limit.Period),
			}, nil
		}

		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitFallback()
		}
	}

	return rl.allowFallback(key, limit), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit Rate) (*Result, error) {
	burst := limit.Limit * rl.config.BurstMultiplier
	if burst < limit.Limit {
		burst = limit.Limit
	}

	res, err := rl.rateLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Limit,
		Burst:  burst,
		Period: limit.Period,
	})
	if err != nil {
		return nil, err
	}

	retryAfter := res.RetryAfter
	if retryAfter < 0 {
		retryAfter = 0
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      limit.Limit,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: retryAfter,
	}, nil
}

func (rl *RateLimiter) allowFallback(key string, limit Rate) *Result {
	rl.fallbackMutex.Lock()
	entry, ok := rl.fallbackLimiters[key]
	if !ok {
		perSecond := rate.Limit(float64(limit.Limit) / limit.Period.Seconds())
		entry = &fallbackEntry{limiter: rate.NewLimiter(perSecond, limit.Limit)}
		rl.fallbackLimiters[key] = entry
	}
	entry.lastSeen = time.Now()
	rl.fallbackMutex.Unlock()

	res := entry.limiter.Reserve()
	if !res.OK() {
		return &Result{
			Limit:      limit.Limit,
			ResetAt:    time.Now().Add(limit.Period),
			RetryAfter: limit.Period,
		}
	}

	if delay := res.Delay(); delay > 0 {
		// Not enough tokens. Give the reservation back so blocked requests
		// do not consume quota.
		res.Cancel()
		return &Result{
			Allowed:    false,
			Limit:      limit.Limit,
			Remaining:  0,
			ResetAt:    time.Now().Add(delay),
			RetryAfter: delay,
		}
	}

	remaining := int(entry.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   true,
		Limit:     limit.Limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(limit.Period),
	}
}

func (rl *RateLimiter) cleanupLoop() {
	interval := rl.config.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops fallback buckets that have sat idle for a full cleanup
// interval. Redis keys expire on their own.
func (rl *RateLimiter) cleanup() {
	idleCutoff := time.Now().Add(-rl.config.CleanupInterval)

	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	removed := 0
	for key, entry := range rl.fallbackLimiters {
		if entry.lastSeen.Before(idleCutoff) {
			delete(rl.fallbackLimiters, key)
			removed++
		}
	}

	if removed > 0 {
		slog.Debug("Cleaned up idle rate limiters",
			"removed", removed,
			"remaining", len(rl.fallbackLimiters))
	}
}

// Close stops the background cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stopCleanup) })
}

// GetStats reports limiter health for the admin endpoints.
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	redisEnabled := rl.redisClient != nil && rl.redisClient.IsEnabled()

	return map[string]interface{}{
		"redis_enabled":     redisEnabled,
		"fallback_enabled":  rl.config.EnableFallback,
		"fallback_limiters": fallbackCount,
		"config": map[string]interface{}{
			"default_per_hour": rl.config.DefaultPerHour,
			"burst_multiplier": rl.config.BurstMultiplier,
			"cleanup_interval": rl.config.CleanupInterval.String(),
		},
	}
}
