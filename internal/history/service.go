package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ossopulse/ossopulse/internal/database"
	"github.com/ossopulse/ossopulse/internal/encoding"
	apperrors "github.com/ossopulse/ossopulse/internal/errors"
)

const (
	// DefaultLimit applies when a request carries no usable limit parameter
	DefaultLimit = 50
	// MaxLimit caps a single history page
	MaxLimit = 200

	previewLimit = 3
)

// Entry is one stored screening with its JSON columns decoded
type Entry struct {
	ID            string      `json:"id"`
	Endpoint      string      `json:"endpoint"`
	CreatedAt     time.Time   `json:"created_at"`
	Predictions   interface{} `json:"predictions"`
	Probabilities interface{} `json:"probabilities"`
	Inputs        interface{} `json:"inputs"`
}

// Response is the payload for history queries
type Response struct {
	History []Entry `json:"history"`
	Count   int     `json:"count"`
}

// RiskSummary is the latest stored assessment snapshot
type RiskSummary struct {
	RiskScore            float64   `json:"risk_score"`
	RiskLevel            string    `json:"risk_level"`
	LastAssessmentDate   time.Time `json:"last_assessment_date"`
	NextReassessmentDate string    `json:"next_reassessment_date"`
}

// Dashboard aggregates the signed-in user's home screen
type Dashboard struct {
	FullName               string       `json:"full_name"`
	PhoneNumber            string       `json:"phone_number"`
	PreferredLanguage      string       `json:"preferred_language"`
	Risk                   *RiskSummary `json:"risk"`
	RecommendationsPreview []string     `json:"recommendations_preview"`
	RemindersEnabled       bool         `json:"reminders_enabled"`
}

// RecommendationItem is one row of the recommendations list
type RecommendationItem struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// RecommendationsResponse is the payload for recommendation queries
type RecommendationsResponse struct {
	Recommendations []RecommendationItem `json:"recommendations"`
	Count           int                  `json:"count"`
}

// Service handles history, dashboard, and recommendation reads
type Service struct {
	repo  *database.Repository
	cache *HistoryCache
}

// NewService creates a new history service
func NewService(repo *database.Repository) *Service {
	return &Service{
		repo:  repo,
		cache: NewHistoryCache(5 * time.Minute),
	}
}

// NewServiceWithCache creates a new history service with a custom cache
func NewServiceWithCache(repo *database.Repository, cache *HistoryCache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// ListHistory returns a user's stored screenings, newest first. The limit is
// clamped to [1, MaxLimit].
func (s *Service) ListHistory(userID string, limit int) (*Response, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	// Try cache first
	if cached, found := s.cache.GetHistory(userID, limit); found {
		return cached, nil
	}

	rows, err := s.repo.GetHistory(userID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to load history", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry := Entry{
			ID:        row.ID,
			Endpoint:  row.Endpoint,
			CreatedAt: row.CreatedAt,
		}

		if entry.Predictions, err = decodeColumn(row.PredictionsJSON, "[]"); err != nil {
			return nil, apperrors.NewDatabaseError(fmt.Sprintf("corrupt predictions column on row %s", row.ID), err)
		}
		if entry.Probabilities, err = decodeColumn(row.ProbabilitiesJSON, "null"); err != nil {
			return nil, apperrors.NewDatabaseError(fmt.Sprintf("corrupt probabilities column on row %s", row.ID), err)
		}
		if entry.Inputs, err = decodeColumn(row.InputsJSON, "{}"); err != nil {
			return nil, apperrors.NewDatabaseError(fmt.Sprintf("corrupt inputs column on row %s", row.ID), err)
		}

		entries = append(entries, entry)
	}

	response := &Response{History: entries, Count: len(entries)}

	// Cache the response for future requests
	s.cache.SetHistory(userID, limit, response)

	return response, nil
}

// Dashboard assembles the home-screen payload for a registered account
func (s *Service) Dashboard(userID string) (*Dashboard, error) {
	// Try cache first
	if cached, found := s.cache.GetDashboard(userID); found {
		return cached, nil
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("User")
		}
		return nil, apperrors.NewDatabaseError("failed to load user", err)
	}

	dashboard := &Dashboard{
		FullName:               user.FullName,
		PhoneNumber:            user.PhoneNumber,
		PreferredLanguage:      user.PreferredLanguage,
		RecommendationsPreview: []string{},
		RemindersEnabled:       user.RemindersEnabled,
	}
	if dashboard.PreferredLanguage == "" {
		dashboard.PreferredLanguage = "english"
	}

	latest, err := s.repo.GetLatestRiskAssessment(userID)
	switch {
	case err == nil:
		dashboard.Risk = &RiskSummary{
			RiskScore:            latest.RiskScore,
			RiskLevel:            latest.RiskLevel,
			LastAssessmentDate:   latest.CreatedAt,
			NextReassessmentDate: latest.NextReassessmentDate,
		}

		recs, recErr := s.repo.GetRecommendations(userID, previewLimit)
		if recErr != nil {
			return nil, apperrors.NewDatabaseError("failed to load recommendations", recErr)
		}
		for _, rec := range recs {
			dashboard.RecommendationsPreview = append(dashboard.RecommendationsPreview, rec.Text)
		}
	case errors.Is(err, sql.ErrNoRows):
		// No screening yet, the risk block stays null
	default:
		return nil, apperrors.NewDatabaseError("failed to load risk assessment", err)
	}

	// Cache the response for future requests
	s.cache.SetDashboard(userID, dashboard)

	return dashboard, nil
}

// Recommendations returns the full recommendation list for a user
func (s *Service) Recommendations(userID string) (*RecommendationsResponse, error) {
	rows, err := s.repo.GetRecommendations(userID, -1)
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to load recommendations", err)
	}

	items := make([]RecommendationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, RecommendationItem{
			Text:     row.Text,
			Category: row.Category,
		})
	}

	return &RecommendationsResponse{Recommendations: items, Count: len(items)}, nil
}

// Invalidate drops cached reads for a user after their rows change
func (s *Service) Invalidate(userID string) {
	s.cache.InvalidateUser(userID)
}

// GetCacheStats returns history cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.GetStats()
}

// decodeColumn parses a stored JSON column. Empty columns decode as the
// fallback literal.
func decodeColumn(raw, fallback string) (interface{}, error) {
	if raw == "" {
		raw = fallback
	}

	var value interface{}
	if err := encoding.UnmarshalJSON([]byte(raw), &value); err != nil {
		return nil, err
	}
	return value, nil
}
