package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// InvalidateUser clears every quota window held for a user, in both the
// shared Redis store and the in-process fallback.
func (rl *RateLimiter) InvalidateUser(ctx context.Context, userID string) error {
	removed := rl.invalidateFallbackSegment("user:" + userID)

	if rl.redisClient != nil && rl.redisClient.IsEnabled() {
		if err := rl.deleteByPattern(ctx, "ratelimit:*:user:"+userID); err != nil {
			return err
		}
	}

	slog.Info("Invalidated user rate limits", "user", shortID(userID), "fallback_removed", removed)
	return nil
}

// InvalidateIP clears every quota window held for an IP address.
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) error {
	removed := rl.invalidateFallbackSegment("ip:" + ip)

	if rl.redisClient != nil && rl.redisClient.IsEnabled() {
		if err := rl.deleteByPattern(ctx, "ratelimit:*:ip:"+ip); err != nil {
			return err
		}
	}

	slog.Info("Invalidated IP rate limits", "ip", ip, "fallback_removed", removed)
	return nil
}

// InvalidateAll clears every tracked quota window. Emergency use only.
func (rl *RateLimiter) InvalidateAll(ctx context.Context) error {
	rl.fallbackMutex.Lock()
	count := len(rl.fallbackLimiters)
	rl.fallbackLimiters = make(map[string]*fallbackEntry)
	rl.fallbackMutex.Unlock()

	if rl.redisClient != nil && rl.redisClient.IsEnabled() {
		slog.Warn("Invalidating ALL rate limits", "pattern", "ratelimit:*")
		return rl.deleteByPattern(ctx, "ratelimit:*")
	}

	slog.Warn("Invalidated all rate limits (in-memory)", "count", count)
	return nil
}

// GetKeyCount reports how many quota windows are currently tracked.
func (rl *RateLimiter) GetKeyCount(ctx context.Context) (int, error) {
	if rl.redisClient != nil && rl.redisClient.IsEnabled() {
		client := rl.redisClient.GetClient()

		var cursor uint64
		count := 0
		for {
			keys, nextCursor, err := client.Scan(ctx, cursor, "ratelimit:*", 100).Result()
			if err != nil {
				return 0, fmt.Errorf("failed to scan keys: %w", err)
			}
			count += len(keys)

			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
		return count, nil
	}

	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()
	return len(rl.fallbackLimiters), nil
}

// invalidateFallbackSegment drops fallback buckets whose key carries the
// given identity segment, such as "user:42" or "ip:10.0.0.9". The segment
// must match in full, a user id that prefixes a longer id does not match.
func (rl *RateLimiter) invalidateFallbackSegment(segment string) int {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	removed := 0
	for key := range rl.fallbackLimiters {
		if key == segment ||
			strings.HasSuffix(key, ":"+segment) ||
			strings.Contains(key, ":"+segment+":") {
			delete(rl.fallbackLimiters, key)
			removed++
		}
	}
	return removed
}

// deleteByPattern removes all Redis keys matching a glob pattern, using SCAN
// so the store is never blocked by one long KEYS call.
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) error {
	client := rl.redisClient.GetClient()

	var cursor uint64
	deletedCount := 0

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deletedCount += int(deleted)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("Deleted rate limit keys by pattern", "pattern", pattern, "count", deletedCount)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
