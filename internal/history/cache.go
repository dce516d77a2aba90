package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ossopulse/ossopulse/internal/cache"
)

// HistoryCache provides caching for history pages and dashboard reads
type HistoryCache struct {
	cache *cache.Cache
}

// NewHistoryCache creates a new history cache
func NewHistoryCache(ttl time.Duration) *HistoryCache {
	return &HistoryCache{
		cache: cache.NewCache(ttl),
	}
}

// generateHistoryKey creates a cache key for one user's history page
func (hc *HistoryCache) generateHistoryKey(userID string, limit int) string {
	return fmt.Sprintf("history:%s:%d", userID, limit)
}

// generateDashboardKey creates a cache key for one user's dashboard
func (hc *HistoryCache) generateDashboardKey(userID string) string {
	return fmt.Sprintf("dashboard:%s", userID)
}

// GetHistory retrieves a cached history page
func (hc *HistoryCache) GetHistory(userID string, limit int) (*Response, bool) {
	cacheKey := hc.generateHistoryKey(userID, limit)

	data, found := hc.cache.Get(cacheKey)
	if !found {
		return nil, false
	}

	var response Response
	if err := json.Unmarshal(data, &response); err != nil {
		slog.Error("Failed to unmarshal cached history data", "error", err, "key", cacheKey)
		return nil, false
	}

	slog.Debug("History cache hit", "user_id", userID, "limit", limit)
	return &response, true
}

// SetHistory caches a history page
func (hc *HistoryCache) SetHistory(userID string, limit int, response *Response) {
	cacheKey := hc.generateHistoryKey(userID, limit)

	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal history data for cache", "error", err, "user_id", userID)
		return
	}

	hc.cache.Set(cacheKey, data)
	slog.Debug("History cached", "user_id", userID, "limit", limit, "entries", response.Count)
}

// GetDashboard retrieves a cached dashboard
func (hc *HistoryCache) GetDashboard(userID string) (*Dashboard, bool) {
	cacheKey := hc.generateDashboardKey(userID)

	data, found := hc.cache.Get(cacheKey)
	if !found {
		return nil, false
	}

	var dashboard Dashboard
	if err := json.Unmarshal(data, &dashboard); err != nil {
		slog.Error("Failed to unmarshal cached dashboard data", "error", err, "key", cacheKey)
		return nil, false
	}

	slog.Debug("Dashboard cache hit", "user_id", userID)
	return &dashboard, true
}

// SetDashboard caches a dashboard
func (hc *HistoryCache) SetDashboard(userID string, dashboard *Dashboard) {
	cacheKey := hc.generateDashboardKey(userID)

	data, err := json.Marshal(dashboard)
	if err != nil {
		slog.Error("Failed to marshal dashboard data for cache", "error", err, "user_id", userID)
		return
	}

	hc.cache.Set(cacheKey, data)
	slog.Debug("Dashboard cached", "user_id", userID)
}

// InvalidateUser drops every cached read for a user after their rows change
func (hc *HistoryCache) InvalidateUser(userID string) {
	removed := hc.cache.DeletePrefix(fmt.Sprintf("history:%s:", userID))
	hc.cache.Delete(hc.generateDashboardKey(userID))
	slog.Debug("History cache invalidated", "user_id", userID, "pages_removed", removed)
}

// GetStats returns cache statistics
func (hc *HistoryCache) GetStats() map[string]interface{} {
	return hc.cache.Stats()
}
