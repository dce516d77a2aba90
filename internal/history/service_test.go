package history

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossopulse/ossopulse/internal/database"
)

func newTestService(t *testing.T) (*Service, *database.Repository) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "ossopulse_history_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	db, err := database.NewDB(tempDir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	return NewService(repo), repo
}

func savePrediction(t *testing.T, repo *database.Repository, userID string, createdAt time.Time, predictions, probabilities, inputs string) {
	t.Helper()

	entry := database.NewPrediction(userID, "survey_submit", predictions, probabilities, inputs)
	entry.CreatedAt = createdAt
	require.NoError(t, repo.SavePrediction(entry))
}

func TestListHistoryDecodesColumns(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Now()

	savePrediction(t, repo, "user-a", now.Add(-2*time.Hour), `[1]`, `[0.42]`, `{"RIDAGEYR": 70}`)
	savePrediction(t, repo, "user-a", now.Add(-1*time.Hour), `[0]`, `[0.05]`, `{"RIDAGEYR": 30}`)

	response, err := svc.ListHistory("user-a", 50)
	require.NoError(t, err)

	assert.Equal(t, 2, response.Count)
	require.Len(t, response.History, 2)

	// Newest first
	newest := response.History[0]
	assert.Equal(t, "survey_submit", newest.Endpoint)
	assert.Equal(t, []interface{}{float64(0)}, newest.Predictions)
	assert.Equal(t, []interface{}{0.05}, newest.Probabilities)

	inputs, ok := newest.Inputs.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(30), inputs["RIDAGEYR"])
}

func TestListHistoryColumnFallbacks(t *testing.T) {
	svc, repo := newTestService(t)

	// Legacy rows can carry empty columns
	savePrediction(t, repo, "user-a", time.Now(), "", "", "")

	response, err := svc.ListHistory("user-a", 50)
	require.NoError(t, err)
	require.Len(t, response.History, 1)

	entry := response.History[0]
	assert.Equal(t, []interface{}{}, entry.Predictions)
	assert.Nil(t, entry.Probabilities)
	assert.Equal(t, map[string]interface{}{}, entry.Inputs)
}

func TestListHistoryClampsLimit(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		savePrediction(t, repo, "user-a", now.Add(time.Duration(i)*time.Minute), `[1]`, `[0.5]`, `{}`)
	}

	// Zero clamps up to one entry
	response, err := svc.ListHistory("user-a", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, response.Count)

	// Oversized limits clamp down and still succeed
	response, err = svc.ListHistory("user-a", 5000)
	require.NoError(t, err)
	assert.Equal(t, 3, response.Count)
}

func TestListHistoryEmptyUser(t *testing.T) {
	svc, _ := newTestService(t)

	response, err := svc.ListHistory("nobody", 50)
	require.NoError(t, err)
	assert.Equal(t, 0, response.Count)
	assert.NotNil(t, response.History)
	assert.Empty(t, response.History)
}

func TestListHistoryCacheInvalidation(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Now()

	savePrediction(t, repo, "user-a", now.Add(-time.Hour), `[1]`, `[0.5]`, `{}`)

	first, err := svc.ListHistory("user-a", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)

	// A write without invalidation is served from cache
	savePrediction(t, repo, "user-a", now, `[0]`, `[0.1]`, `{}`)
	stale, err := svc.ListHistory("user-a", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, stale.Count)

	svc.Invalidate("user-a")
	fresh, err := svc.ListHistory("user-a", 50)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Count)
}

func TestDashboardWithoutAssessment(t *testing.T) {
	svc, repo := newTestService(t)

	user := database.NewUser("Asha Rao", "9876543210", "hash")
	require.NoError(t, repo.CreateUser(user))

	dashboard, err := svc.Dashboard(user.ID)
	require.NoError(t, err)

	assert.Equal(t, "Asha Rao", dashboard.FullName)
	assert.Equal(t, "9876543210", dashboard.PhoneNumber)
	assert.Equal(t, "english", dashboard.PreferredLanguage)
	assert.True(t, dashboard.RemindersEnabled)
	assert.Nil(t, dashboard.Risk)
	assert.NotNil(t, dashboard.RecommendationsPreview)
	assert.Empty(t, dashboard.RecommendationsPreview)
}

func TestDashboardWireShape(t *testing.T) {
	svc, repo := newTestService(t)

	user := database.NewUser("Asha Rao", "9876543210", "hash")
	require.NoError(t, repo.CreateUser(user))

	dashboard, err := svc.Dashboard(user.ID)
	require.NoError(t, err)

	payload, err := json.Marshal(dashboard)
	require.NoError(t, err)

	// Absent assessments serialize as null, the preview as an empty array
	assert.Contains(t, string(payload), `"risk":null`)
	assert.Contains(t, string(payload), `"recommendations_preview":[]`)
}

func TestDashboardWithAssessment(t *testing.T) {
	svc, repo := newTestService(t)

	user := database.NewUser("Asha Rao", "9876543210", "hash")
	require.NoError(t, repo.CreateUser(user))

	older := database.NewRiskAssessment(user.ID, 8.0, "Low", "2026-02-01")
	older.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.SaveRiskAssessment(older))

	newer := database.NewRiskAssessment(user.ID, 23.5, "High", "2025-09-22")
	require.NoError(t, repo.SaveRiskAssessment(newer))

	require.NoError(t, repo.SaveRecommendations(user.ID,
		[]string{"Do weight-bearing exercise for 30 minutes daily", "Take calcium-rich foods like milk and ragi", "Get enough sunlight for vitamin D", "Schedule a bone density test"},
		nil))

	dashboard, err := svc.Dashboard(user.ID)
	require.NoError(t, err)

	require.NotNil(t, dashboard.Risk)
	assert.InDelta(t, 23.5, dashboard.Risk.RiskScore, 1e-9)
	assert.Equal(t, "High", dashboard.Risk.RiskLevel)
	assert.Equal(t, "2025-09-22", dashboard.Risk.NextReassessmentDate)
	assert.WithinDuration(t, newer.CreatedAt, dashboard.Risk.LastAssessmentDate, 2*time.Second)

	// Preview carries at most three entries
	assert.Len(t, dashboard.RecommendationsPreview, 3)
}

func TestDashboardMissingUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Dashboard("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User not found")
}

func TestDashboardCacheInvalidation(t *testing.T) {
	svc, repo := newTestService(t)

	user := database.NewUser("Asha Rao", "9876543210", "hash")
	require.NoError(t, repo.CreateUser(user))

	first, err := svc.Dashboard(user.ID)
	require.NoError(t, err)
	assert.Nil(t, first.Risk)

	require.NoError(t, repo.SaveRiskAssessment(database.NewRiskAssessment(user.ID, 12.0, "Moderate", "2025-11-21")))

	stale, err := svc.Dashboard(user.ID)
	require.NoError(t, err)
	assert.Nil(t, stale.Risk)

	svc.Invalidate(user.ID)
	fresh, err := svc.Dashboard(user.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.Risk)
	assert.Equal(t, "Moderate", fresh.Risk.RiskLevel)
}

func TestRecommendations(t *testing.T) {
	svc, repo := newTestService(t)

	empty, err := svc.Recommendations("user-a")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.NotNil(t, empty.Recommendations)

	require.NoError(t, repo.SaveRecommendations("user-a",
		[]string{"Do weight-bearing exercise for 30 minutes daily"},
		[]string{"Consult a doctor about your fracture history"}))

	full, err := svc.Recommendations("user-a")
	require.NoError(t, err)
	assert.Equal(t, 2, full.Count)

	categories := make(map[string]string)
	for _, item := range full.Recommendations {
		categories[item.Category] = item.Text
	}
	assert.Equal(t, "Do weight-bearing exercise for 30 minutes daily", categories[database.CategoryTask])
	assert.Equal(t, "Consult a doctor about your fracture history", categories[database.CategoryAlert])
}
