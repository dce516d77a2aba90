package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ossopulse/ossopulse/internal/database"
)

// DefaultRetentionDays is the screening-data retention window
const DefaultRetentionDays = 365

// PrivacyService handles data anonymization and privacy compliance
type PrivacyService struct {
	repo *database.Repository
}

// NewService creates a new privacy service
func NewService(repo *database.Repository) *PrivacyService {
	return &PrivacyService{repo: repo}
}

// AnonymizeData creates an anonymized reference for user-supplied data
func (ps *PrivacyService) AnonymizeData(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// hashRef returns a short anonymized reference for log lines
func (ps *PrivacyService) hashRef(userID string) string {
	return ps.AnonymizeData(userID)[:8] + "..."
}

// DeleteUserData removes every stored row associated with a screening user id
func (ps *PrivacyService) DeleteUserData(userID string) (database.DeletionCounts, error) {
	slog.Info("Initiating user data deletion", "user_hash", ps.hashRef(userID))

	counts, err := ps.repo.DeleteUserData(userID)
	if err != nil {
		return counts, fmt.Errorf("failed to delete user data: %w", err)
	}

	slog.Info("Data deletion completed",
		"user_hash", ps.hashRef(userID),
		"predictions_deleted", counts.Predictions,
		"risk_assessments_deleted", counts.RiskAssessments,
		"recommendations_deleted", counts.Recommendations,
	)

	return counts, nil
}

// ScheduleDataCleanup purges screening rows older than the retention window
func (ps *PrivacyService) ScheduleDataCleanup(retentionDays int) (database.DeletionCounts, error) {
	slog.Info("Running data cleanup", "retention_days", retentionDays)

	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	counts, err := ps.repo.PurgeBefore(cutoffDate)
	if err != nil {
		return counts, fmt.Errorf("failed to purge expired rows: %w", err)
	}

	slog.Info("Data cleanup completed",
		"cutoff_date", cutoffDate,
		"predictions_deleted", counts.Predictions,
		"risk_assessments_deleted", counts.RiskAssessments,
		"recommendations_deleted", counts.Recommendations,
	)

	return counts, nil
}

// StartRetentionLoop runs ScheduleDataCleanup once a day in the background
func (ps *PrivacyService) StartRetentionLoop(retentionDays int) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if _, err := ps.ScheduleDataCleanup(retentionDays); err != nil {
				slog.Error("Scheduled data cleanup failed", "error", err)
			}
		}
	}()
}

// GetDataRetentionInfo provides information about data retention policies
func (ps *PrivacyService) GetDataRetentionInfo() map[string]interface{} {
	return map[string]interface{}{
		"screening_history_retention_days": DefaultRetentionDays,
		"risk_assessment_retention_days":   DefaultRetentionDays,
		"cache_retention_minutes":          5,
		"anonymization_method":             "SHA-256",
		"data_deletion_response_time":      "24 hours",
		"privacy_policy_url":               "/api/public/app-info",
		"contact_email":                    "privacy@ossopulse.health",
	}
}
