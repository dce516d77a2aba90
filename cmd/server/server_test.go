package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossopulse/ossopulse/internal/database"
	"github.com/ossopulse/ossopulse/internal/errors"
	"github.com/ossopulse/ossopulse/internal/history"
	"github.com/ossopulse/ossopulse/internal/privacy"
	"github.com/ossopulse/ossopulse/internal/risk"
	"github.com/ossopulse/ossopulse/internal/security"
	"github.com/ossopulse/ossopulse/internal/survey"
	"github.com/ossopulse/ossopulse/internal/types"
)

const (
	testAPIKey    = "test-api-key"
	testJWTSecret = "test-jwt-secret"
)

// screeningSchema mirrors the NHANES-derived training columns.
func screeningSchema() risk.Schema {
	return risk.Schema{
		"RIDAGEYR", "AGE_SQUARED", "RIAGENDR", "BMXBMI",
		"MCQ366A", "MCQ371A", "MCQ371D", "MCQ092",
		"MCQ160G", "MCQ160L", "MCQ160K", "MCQ160B",
		"MCQ230A", "MCQ550", "MCQ025", "calcium_level",
	}
}

// writeArtifacts installs a model whose calibration pins every probability
// to a constant, plus the matching feature order file.
func writeArtifacts(t *testing.T, dir string, probability float64) (string, string) {
	t.Helper()

	schema := screeningSchema()
	weights := make(map[string]float64, len(schema))
	for _, name := range schema {
		weights[name] = 0
	}
	artifact := risk.ModelArtifact{
		ModelType: "logistic",
		Weights:   weights,
		Calibration: &risk.CalibrationCurve{
			X: []float64{0, 1},
			Y: []float64{probability, probability},
		},
	}

	modelPath := filepath.Join(dir, "model.json")
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(modelPath, data, 0644))

	featuresPath := filepath.Join(dir, "feature_order.json")
	data, err = json.Marshal(schema)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(featuresPath, data, 0644))

	return modelPath, featuresPath
}

func fullScreeningRecord() types.RecordInput {
	return types.RecordInput{
		"RIDAGEYR":      70.0,
		"AGE_SQUARED":   4900.0,
		"RIAGENDR":      2.0,
		"BMXBMI":        24.5,
		"MCQ366A":       0.0,
		"MCQ371A":       1.0,
		"MCQ371D":       0.0,
		"MCQ092":        0.0,
		"MCQ160G":       1.0,
		"MCQ160L":       0.0,
		"MCQ160K":       0.0,
		"MCQ160B":       0.0,
		"MCQ230A":       0.0,
		"MCQ550":        1.0,
		"MCQ025":        0.0,
		"calcium_level": 1.0,
	}
}

func fullSurveyAnswers() map[string]interface{} {
	return map[string]interface{}{
		"age":               62,
		"gender":            "Female",
		"height_feet":       5,
		"height_inches":     4,
		"weight_kg":         58,
		"memory_issue":      "No",
		"mobility_climb":    "Yes",
		"stand_long":        "No",
		"activity_limited":  "No",
		"arthritis":         "Yes",
		"thyroid":           "No",
		"lung_disease":      "No",
		"heart_failure":     "No",
		"smoking":           "No",
		"alcohol":           "Occasionally",
		"general_health":    "Fair",
		"calcium_frequency": "Rarely",
	}
}

func minimalSurveyAnswers() map[string]interface{} {
	return map[string]interface{}{
		"age":           40,
		"gender":        "Male",
		"height_feet":   5,
		"height_inches": 11,
		"weight_kg":     78,
	}
}

// screeningResponse decodes the survey and form screening payloads.
type screeningResponse struct {
	Probability      float64  `json:"probability"`
	Prediction       int      `json:"prediction"`
	RiskLevel        string   `json:"risk_level"`
	RiskScore        int      `json:"risk_score"`
	Message          string   `json:"message"`
	NextReassessment string   `json:"next_reassessment_date"`
	RecommendedTasks []string `json:"recommended_tasks"`
	MedicalAlerts    []string `json:"medical_alerts"`
}

func setupRouter(t *testing.T) *gin.Engine {
	return setupRouterWithProbability(t, 0.25)
}

func setupRouterWithProbability(t *testing.T, probability float64) *gin.Engine {
	t.Helper()
	dir := t.TempDir()
	modelPath, featuresPath := writeArtifacts(t, dir, probability)
	return buildRouter(t, dir, modelPath, featuresPath)
}

func setupRouterWithoutArtifacts(t *testing.T) *gin.Engine {
	t.Helper()
	dir := t.TempDir()
	return buildRouter(t, dir,
		filepath.Join(dir, "model.json"),
		filepath.Join(dir, "feature_order.json"))
}

// buildRouter wires the handler surface against real services rooted in a
// temporary directory. Persistence runs synchronously so tests can read
// their writes back immediately.
func buildRouter(t *testing.T, dataDir, modelPath, featuresPath string) *gin.Engine {
	t.Helper()

	db, err := database.NewDB(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	authService := database.NewAuthService(repo, testJWTSecret)
	historyService := history.NewService(repo)
	privacyService := privacy.NewService(repo)

	modelStore := risk.NewModelStore(modelPath, featuresPath)
	screener := risk.NewScreener(modelStore)

	securityMiddleware := security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	securityMiddleware.SetAPIKey(testAPIKey)
	securityMiddleware.SetAuthService(authService)

	saveScreening := func(userID, endpoint string, predictions []int, probabilities []float64, inputs interface{}) {
		predictionsJSON, err := json.Marshal(predictions)
		assert.NoError(t, err)
		probabilitiesJSON, err := json.Marshal(probabilities)
		assert.NoError(t, err)
		inputsJSON, err := json.Marshal(inputs)
		assert.NoError(t, err)

		row := database.NewPrediction(userID, endpoint, string(predictionsJSON), string(probabilitiesJSON), string(inputsJSON))
		assert.NoError(t, repo.SavePrediction(row))
		historyService.Invalidate(userID)
	}

	r := gin.New()

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "OssoPulse",
			"routes": []string{
				"/health",
				"/predict",
				"/predict_form",
				"/survey/questions",
				"/survey/submit",
				"/history",
				"/user_data",
			},
			"message": "Backend is running. Use POST /predict or /predict_form for inference, or GET /survey/questions to start a survey.",
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   "1.0.0",
			"artifacts": modelStore.Status(),
		})
	})

	r.GET("/artifacts_check", func(c *gin.Context) {
		c.JSON(http.StatusOK, modelStore.Status())
	})

	r.GET("/survey/questions", func(c *gin.Context) {
		questions := survey.Questions()
		c.JSON(http.StatusOK, gin.H{
			"total_questions": len(questions),
			"questions":       questions,
		})
	})

	auth := r.Group("/api/auth")
	auth.POST("/signup", func(c *gin.Context) {
		var req types.SignupRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		user, err := authService.Signup(database.SignupInput{
			FullName:    req.FullName,
			PhoneNumber: req.PhoneNumber,
			Password:    req.Password,
		})
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "Account created successfully",
			"user": gin.H{
				"id":           user.ID,
				"full_name":    user.FullName,
				"phone_number": user.PhoneNumber,
			},
		})
	})

	auth.POST("/login", func(c *gin.Context) {
		var req types.LoginRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		result, err := authService.Login(req.PhoneNumber, req.Password)
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": result.AccessToken,
			"user": gin.H{
				"id":           result.User.ID,
				"full_name":    result.User.FullName,
				"phone_number": result.User.PhoneNumber,
			},
		})
	})

	auth.GET("/verify", securityMiddleware.RequireAuth, func(c *gin.Context) {
		user, err := authService.GetProfile(c.GetString("user_id"))
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"valid": true,
			"user": gin.H{
				"id":           user.ID,
				"full_name":    user.FullName,
				"phone_number": user.PhoneNumber,
				"created_at":   user.CreatedAt,
			},
		})
	})

	userGroup := r.Group("/api/user", securityMiddleware.RequireAuth)
	userGroup.GET("/profile", func(c *gin.Context) {
		user, err := authService.GetProfile(c.GetString("user_id"))
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":                 user.ID,
			"full_name":          user.FullName,
			"phone_number":       user.PhoneNumber,
			"preferred_language": user.PreferredLanguage,
			"reminders_enabled":  user.RemindersEnabled,
			"created_at":         user.CreatedAt,
		})
	})

	userGroup.GET("/dashboard", func(c *gin.Context) {
		dashboard, err := historyService.Dashboard(c.GetString("user_id"))
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, dashboard)
	})

	userGroup.GET("/recommendations", func(c *gin.Context) {
		recommendations, err := historyService.Recommendations(c.GetString("user_id"))
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, recommendations)
	})

	userGroup.POST("/preferences", func(c *gin.Context) {
		var req types.PreferencesRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		userID := c.GetString("user_id")
		if err := authService.UpdatePreferences(userID, req.PreferredLanguage); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		historyService.Invalidate(userID)

		c.JSON(http.StatusOK, gin.H{
			"message":            "Preferences updated",
			"preferred_language": req.PreferredLanguage,
		})
	})

	userGroup.POST("/reminders", func(c *gin.Context) {
		var req types.RemindersRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		userID := c.GetString("user_id")
		if err := authService.SetReminders(userID, *req.Enabled); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		historyService.Invalidate(userID)

		message := "Reminders disabled"
		if *req.Enabled {
			message = "Reminders enabled"
		}
		c.JSON(http.StatusOK, gin.H{
			"reminders_enabled": *req.Enabled,
			"message":           message,
		})
	})

	legacy := r.Group("/", securityMiddleware.RequireAPIKey, securityMiddleware.RequireUserID)

	legacy.POST("/predict", func(c *gin.Context) {
		var req types.PredictRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		assessments, err := screener.ScreenRecords(req.Records, resolveThreshold(req.Threshold), time.Now())
		if err != nil {
			appErr := screeningError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		predictions := make([]int, len(assessments))
		probabilities := make([]float64, len(assessments))
		for i, a := range assessments {
			predictions[i] = a.Prediction
			probabilities[i] = a.Probability
		}

		saveScreening(c.GetString("user_id"), "predict", predictions, probabilities, req.Records)

		c.JSON(http.StatusOK, gin.H{
			"predictions":   predictions,
			"probabilities": probabilities,
		})
	})

	legacy.POST("/predict_form", func(c *gin.Context) {
		var req types.PredictFormRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		results, err := screener.ScreenForms(req.Forms, resolveThreshold(req.Threshold), time.Now())
		if err != nil {
			appErr := screeningError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		predictions := make([]int, len(results))
		probabilities := make([]float64, len(results))
		riskLevels := make([]string, len(results))
		messages := make([]string, len(results))
		tasks := make([][]string, len(results))
		alerts := make([][]string, len(results))
		for i, res := range results {
			predictions[i] = res.Prediction
			probabilities[i] = res.Probability
			riskLevels[i] = res.Level
			messages[i] = res.Message
			tasks[i] = res.RecommendedTasks
			alerts[i] = res.MedicalAlerts
		}

		saveScreening(c.GetString("user_id"), "predict_form", predictions, probabilities, req.Forms)

		c.JSON(http.StatusOK, gin.H{
			"predictions":   predictions,
			"probabilities": probabilities,
			"risk_levels":   riskLevels,
			"messages":      messages,
			"tasks":         tasks,
			"alerts":        alerts,
		})
	})

	legacy.POST("/survey/submit", func(c *gin.Context) {
		var req types.SurveySubmitRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		result, err := screener.ScreenSurvey(req.SurveyData, resolveThreshold(req.Threshold), time.Now())
		if err != nil {
			appErr := screeningError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		userID := c.GetString("user_id")
		saveScreening(userID, "survey_submit", []int{result.Prediction}, []float64{result.Probability}, req.SurveyData)

		assessment := database.NewRiskAssessment(userID, float64(result.RiskScore), result.Level, result.NextReassessment)
		assert.NoError(t, repo.SaveRiskAssessment(assessment))
		assert.NoError(t, repo.SaveRecommendations(userID, result.RecommendedTasks, result.MedicalAlerts))
		historyService.Invalidate(userID)

		c.JSON(http.StatusOK, result)
	})

	legacy.GET("/history", func(c *gin.Context) {
		limit := history.DefaultLimit
		if limitStr := c.Query("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil {
				limit = parsed
			}
		}

		response, err := historyService.ListHistory(c.GetString("user_id"), limit)
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, response)
	})

	legacy.DELETE("/user_data", func(c *gin.Context) {
		userID := c.GetString("user_id")
		counts, err := privacyService.DeleteUserData(userID)
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		historyService.Invalidate(userID)

		c.JSON(http.StatusOK, gin.H{
			"status":       "user data deleted",
			"rows_deleted": counts.Total(),
		})
	})

	// Payment routes answer 503 until a Stripe key is configured
	r.POST("/payment/create-session", func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not configured"})
	})

	return r
}

// screeningRequest performs a request against the screening surface with the
// API key and user id headers set.
func screeningRequest(r *gin.Engine, method, path string, body interface{}, userID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	r.ServeHTTP(w, req)
	return w
}

// jsonRequest performs a plain JSON request without screening headers.
func jsonRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func submitSurvey(t *testing.T, r *gin.Engine, userID string) {
	t.Helper()
	w := screeningRequest(r, "POST", "/survey/submit", map[string]interface{}{
		"survey_data": fullSurveyAnswers(),
	}, userID)
	require.Equal(t, http.StatusOK, w.Code, "survey submission failed: %s", w.Body.String())
}

func TestLandingEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
	assert.Equal(t, "OssoPulse", response["service"])
	assert.Contains(t, response["routes"], "/predict")
	assert.Contains(t, response["routes"], "/survey/submit")
	assert.NotEmpty(t, response["message"])
}

func TestResponseContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestSurveyQuestionsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/survey/questions", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		TotalQuestions int               `json:"total_questions"`
		Questions      []survey.Question `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, len(survey.Questions()), response.TotalQuestions)
	assert.Len(t, response.Questions, response.TotalQuestions)

	require.NotEmpty(t, response.Questions)
	assert.Equal(t, "age", response.Questions[0].FieldName)
	assert.True(t, response.Questions[0].Required)
}

func TestPredictEndpoint_ValidRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t) // probability pinned to 0.25

	tests := []struct {
		name            string
		body            map[string]interface{}
		wantPredictions []int
	}{
		{
			name: "single record with default threshold",
			body: map[string]interface{}{
				"records": []types.RecordInput{fullScreeningRecord()},
			},
			wantPredictions: []int{1},
		},
		{
			name: "batch of three records",
			body: map[string]interface{}{
				"records": []types.RecordInput{
					fullScreeningRecord(), fullScreeningRecord(), fullScreeningRecord(),
				},
			},
			wantPredictions: []int{1, 1, 1},
		},
		{
			name: "threshold above the probability clears the flag",
			body: map[string]interface{}{
				"records":   []types.RecordInput{fullScreeningRecord()},
				"threshold": 0.5,
			},
			wantPredictions: []int{0},
		},
		{
			name: "empty batch",
			body: map[string]interface{}{
				"records": []types.RecordInput{},
			},
			wantPredictions: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := screeningRequest(r, "POST", "/predict", tt.body, "predict-user")

			assert.Equal(t, http.StatusOK, w.Code)

			var response struct {
				Predictions   []int     `json:"predictions"`
				Probabilities []float64 `json:"probabilities"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantPredictions, response.Predictions)
			require.Len(t, response.Probabilities, len(tt.wantPredictions))
			for _, p := range response.Probabilities {
				assert.Equal(t, 0.25, p)
			}
		})
	}
}

func TestPredictEndpoint_InvalidRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	boundsRecord := fullScreeningRecord()
	boundsRecord["RIDAGEYR"] = 150.0

	partialRecord := types.RecordInput{"RIDAGEYR": 70.0, "BMXBMI": 24.5}

	tests := []struct {
		name         string
		rawBody      string
		body         map[string]interface{}
		wantStatus   int
		wantCategory string
		wantError    string
	}{
		{
			name:       "malformed json",
			rawBody:    `{"records": [}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing records key",
			body:       map[string]interface{}{"threshold": 0.2},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:         "age outside documented bounds",
			body:         map[string]interface{}{"records": []types.RecordInput{boundsRecord}},
			wantStatus:   http.StatusBadRequest,
			wantCategory: "validation",
			wantError:    "age must be between 18 and 100",
		},
		{
			name:         "record missing schema columns",
			body:         map[string]interface{}{"records": []types.RecordInput{partialRecord}},
			wantStatus:   http.StatusBadRequest,
			wantCategory: "encoding",
			wantError:    "missing features",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.rawBody != "" {
				w = httptest.NewRecorder()
				req, _ := http.NewRequest("POST", "/predict", bytes.NewBufferString(tt.rawBody))
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-API-Key", testAPIKey)
				req.Header.Set("X-User-Id", "predict-user")
				r.ServeHTTP(w, req)
			} else {
				w = screeningRequest(r, "POST", "/predict", tt.body, "predict-user")
			}

			assert.Equal(t, tt.wantStatus, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			if tt.wantCategory != "" {
				assert.Equal(t, tt.wantCategory, response["category"])
			}
			if tt.wantError != "" {
				assert.Contains(t, response["error"], tt.wantError)
			}
		})
	}
}

func TestPredictEndpoint_Authentication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	body, err := json.Marshal(map[string]interface{}{
		"records": []types.RecordInput{fullScreeningRecord()},
	})
	require.NoError(t, err)

	tests := []struct {
		name       string
		apiKey     string
		userID     string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing api key",
			userID:     "user-1",
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid or missing API key",
		},
		{
			name:       "wrong api key",
			apiKey:     "not-the-key",
			userID:     "user-1",
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid or missing API key",
		},
		{
			name:       "missing user id header",
			apiKey:     testAPIKey,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Missing user id header 'X-User-Id'",
		},
		{
			name:       "oversized user id header",
			apiKey:     testAPIKey,
			userID:     strings.Repeat("x", 200),
			wantStatus: http.StatusBadRequest,
			wantError:  "maximum length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/predict", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			if tt.userID != "" {
				req.Header.Set("X-User-Id", tt.userID)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Contains(t, response["error"], tt.wantError)
		})
	}
}

func TestSurveySubmitEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t) // probability pinned to 0.25

	w := screeningRequest(r, "POST", "/survey/submit", map[string]interface{}{
		"survey_data": fullSurveyAnswers(),
	}, "survey-user")

	assert.Equal(t, http.StatusOK, w.Code)

	var response screeningResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.Equal(t, 0.25, response.Probability)
	assert.Equal(t, 1, response.Prediction)
	assert.Equal(t, "High", response.RiskLevel)
	assert.Equal(t, 25, response.RiskScore)
	assert.Equal(t, "Strong osteoporosis risk patterns observed. Preventive action and clinical screening advised.", response.Message)

	// High tier schedules the next check 30 days out
	parsed, err := time.Parse("2006-01-02", response.NextReassessment)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), parsed, 48*time.Hour)

	// Recommendations derive from the raw answers, not the probability
	assert.Contains(t, response.RecommendedTasks, "Limit alcohol intake to protect bone strength")
	assert.Contains(t, response.MedicalAlerts, "Existing medical condition may increase bone risk. Clinical screening recommended.")
}

func TestSurveySubmitEndpoint_Validation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	overAge := fullSurveyAnswers()
	overAge["age"] = 150

	badGender := fullSurveyAnswers()
	badGender["gender"] = "Other"

	tests := []struct {
		name      string
		answers   map[string]interface{}
		wantError string
	}{
		{"age above bound", overAge, "age must be between 18 and 100"},
		{"unknown gender", badGender, "gender must be Male or Female"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := screeningRequest(r, "POST", "/survey/submit", map[string]interface{}{
				"survey_data": tt.answers,
			}, "survey-user")

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, "validation", response["category"])
			assert.Contains(t, response["error"], tt.wantError)
		})
	}
}

func TestScreeningWithoutArtifacts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouterWithoutArtifacts(t)

	t.Run("valid input reports the missing model", func(t *testing.T) {
		w := screeningRequest(r, "POST", "/survey/submit", map[string]interface{}{
			"survey_data": minimalSurveyAnswers(),
		}, "survey-user")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "unavailable", response["category"])
		assert.Contains(t, response["error"], "model artifacts are not available")
	})

	t.Run("invalid input is rejected before the artifact load", func(t *testing.T) {
		answers := minimalSurveyAnswers()
		answers["age"] = 150

		w := screeningRequest(r, "POST", "/survey/submit", map[string]interface{}{
			"survey_data": answers,
		}, "survey-user")

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "validation", response["category"])
	})

	t.Run("artifacts check reports both files missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/artifacts_check", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var status risk.ArtifactStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.False(t, status.ModelExists)
		assert.False(t, status.FeaturesExists)
	})
}

func TestSurveySubmit_ThresholdOnlyMovesPrediction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouterWithProbability(t, 0.15) // Moderate tier

	tests := []struct {
		name           string
		threshold      interface{}
		wantPrediction int
	}{
		{"default threshold flags the respondent", nil, 1},
		{"raised threshold clears the flag", 0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := map[string]interface{}{"survey_data": minimalSurveyAnswers()}
			if tt.threshold != nil {
				body["threshold"] = tt.threshold
			}

			w := screeningRequest(r, "POST", "/survey/submit", body, "survey-user")

			assert.Equal(t, http.StatusOK, w.Code)

			var response screeningResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantPrediction, response.Prediction)
			assert.Equal(t, "Moderate", response.RiskLevel)
			assert.Equal(t, 15, response.RiskScore)
		})
	}
}

func TestPredictFormEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	w := screeningRequest(r, "POST", "/predict_form", map[string]interface{}{
		"forms": []map[string]interface{}{fullSurveyAnswers(), minimalSurveyAnswers()},
	}, "form-user")

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Predictions   []int      `json:"predictions"`
		Probabilities []float64  `json:"probabilities"`
		RiskLevels    []string   `json:"risk_levels"`
		Messages      []string   `json:"messages"`
		Tasks         [][]string `json:"tasks"`
		Alerts        [][]string `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.Equal(t, []int{1, 1}, response.Predictions)
	assert.Equal(t, []float64{0.25, 0.25}, response.Probabilities)
	assert.Equal(t, []string{"High", "High"}, response.RiskLevels)
	require.Len(t, response.Messages, 2)
	require.Len(t, response.Tasks, 2)
	require.Len(t, response.Alerts, 2)

	// The first form reports lifestyle risks, the minimal one reports none
	assert.Contains(t, response.Tasks[0], "Limit alcohol intake to protect bone strength")
	assert.Empty(t, response.Tasks[1])
	assert.Empty(t, response.Alerts[1])
}

func TestPredictFormEndpoint_InvalidFormAbortsBatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	invalid := minimalSurveyAnswers()
	invalid["age"] = 10

	w := screeningRequest(r, "POST", "/predict_form", map[string]interface{}{
		"forms": []map[string]interface{}{fullSurveyAnswers(), invalid},
	}, "form-user")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "validation", response["category"])
}

func TestHistoryEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	submitSurvey(t, r, "user-a")
	submitSurvey(t, r, "user-a")
	submitSurvey(t, r, "user-b")

	t.Run("returns only the caller's screenings", func(t *testing.T) {
		w := screeningRequest(r, "GET", "/history", nil, "user-a")
		assert.Equal(t, http.StatusOK, w.Code)

		var response history.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 2, response.Count)
		for _, entry := range response.History {
			assert.Equal(t, "survey_submit", entry.Endpoint)
			assert.NotEmpty(t, entry.ID)
		}
	})

	t.Run("limit parameter caps the page", func(t *testing.T) {
		w := screeningRequest(r, "GET", "/history?limit=1", nil, "user-a")
		assert.Equal(t, http.StatusOK, w.Code)

		var response history.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 1, response.Count)
	})

	t.Run("unparseable limit falls back to the default", func(t *testing.T) {
		w := screeningRequest(r, "GET", "/history?limit=abc", nil, "user-b")
		assert.Equal(t, http.StatusOK, w.Code)

		var response history.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 1, response.Count)
	})

	t.Run("unknown user has an empty history", func(t *testing.T) {
		w := screeningRequest(r, "GET", "/history", nil, "nobody")
		assert.Equal(t, http.StatusOK, w.Code)

		var response history.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 0, response.Count)
	})
}

func TestUserDataDeletion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	submitSurvey(t, r, "wipe-user")
	submitSurvey(t, r, "bystander")

	w := screeningRequest(r, "DELETE", "/user_data", nil, "wipe-user")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "user data deleted", response["status"])
	// One screening row, one risk snapshot, plus recommendation lines
	assert.GreaterOrEqual(t, response["rows_deleted"], float64(2))

	w = screeningRequest(r, "GET", "/history", nil, "wipe-user")
	var emptied history.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &emptied))
	assert.Equal(t, 0, emptied.Count)

	// Unrelated users keep their rows
	w = screeningRequest(r, "GET", "/history", nil, "bystander")
	var kept history.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kept))
	assert.Equal(t, 1, kept.Count)
}

func TestSignupValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	tests := []struct {
		name      string
		body      map[string]interface{}
		wantError string
	}{
		{
			name:      "missing full name",
			body:      map[string]interface{}{"phone_number": "9876543210", "password": "secret123"},
			wantError: "Full name is required",
		},
		{
			name:      "phone number too short",
			body:      map[string]interface{}{"full_name": "Asha Rao", "phone_number": "12345", "password": "secret123"},
			wantError: "Phone number must be exactly 10 digits",
		},
		{
			name:      "phone number with letters",
			body:      map[string]interface{}{"full_name": "Asha Rao", "phone_number": "98765abcde", "password": "secret123"},
			wantError: "Phone number must be exactly 10 digits",
		},
		{
			name:      "password too short",
			body:      map[string]interface{}{"full_name": "Asha Rao", "phone_number": "9876543210", "password": "abc"},
			wantError: "Password must be at least 6 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := jsonRequest(r, "POST", "/api/auth/signup", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, "validation", response["category"])
			assert.Contains(t, response["error"], tt.wantError)
		})
	}
}

func TestAuthFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	signupBody := map[string]interface{}{
		"full_name":    "Asha Rao",
		"phone_number": "9876543210",
		"password":     "secret123",
	}

	// Signup
	w := jsonRequest(r, "POST", "/api/auth/signup", signupBody)
	require.Equal(t, http.StatusCreated, w.Code, "signup failed: %s", w.Body.String())

	var signupResponse struct {
		Message string `json:"message"`
		User    struct {
			ID          string `json:"id"`
			FullName    string `json:"full_name"`
			PhoneNumber string `json:"phone_number"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signupResponse))
	assert.Equal(t, "Account created successfully", signupResponse.Message)
	assert.NotEmpty(t, signupResponse.User.ID)
	assert.Equal(t, "Asha Rao", signupResponse.User.FullName)

	// Duplicate signup conflicts
	w = jsonRequest(r, "POST", "/api/auth/signup", signupBody)
	assert.Equal(t, http.StatusConflict, w.Code)

	var conflict map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	assert.Equal(t, "conflict", conflict["category"])
	assert.Contains(t, conflict["error"], "Phone number already registered")

	// Login
	w = jsonRequest(r, "POST", "/api/auth/login", map[string]interface{}{
		"phone_number": "9876543210",
		"password":     "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())

	var loginResponse struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResponse))
	require.NotEmpty(t, loginResponse.AccessToken)
	assert.Equal(t, signupResponse.User.ID, loginResponse.User.ID)

	// Wrong password is rejected without detail
	w = jsonRequest(r, "POST", "/api/auth/login", map[string]interface{}{
		"phone_number": "9876543210",
		"password":     "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var denied map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &denied))
	assert.Contains(t, denied["error"], "Invalid phone number or password")

	// Verify the session token
	w = httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+loginResponse.AccessToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var verify map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verify))
	assert.Equal(t, true, verify["valid"])

	// Profile carries the account defaults
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/user/profile", nil)
	req.Header.Set("Authorization", "Bearer "+loginResponse.AccessToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var profile map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, "Asha Rao", profile["full_name"])
	assert.Equal(t, "english", profile["preferred_language"])
	assert.Equal(t, true, profile["reminders_enabled"])
}

func TestAuthEndpoints_RejectBadTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	tests := []struct {
		name       string
		authHeader string
		wantError  string
	}{
		{"no authorization header", "", "Authorization token is missing"},
		{"header without token part", "Bearer", "Invalid authorization header format"},
		{"garbage token", "Bearer not-a-jwt", "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/user/profile", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Contains(t, response["error"], tt.wantError)
		})
	}
}

func TestPreferencesAndReminders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	token := signupAndLogin(t, r, "9876500001")

	t.Run("unsupported language is rejected", func(t *testing.T) {
		w := authedRequest(r, "POST", "/api/user/preferences", map[string]interface{}{
			"preferred_language": "french",
		}, token)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response["error"], "Invalid language")
	})

	t.Run("supported language is stored", func(t *testing.T) {
		w := authedRequest(r, "POST", "/api/user/preferences", map[string]interface{}{
			"preferred_language": "hindi",
		}, token)

		assert.Equal(t, http.StatusOK, w.Code)

		w = authedRequest(r, "GET", "/api/user/profile", nil, token)
		var profile map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
		assert.Equal(t, "hindi", profile["preferred_language"])
	})

	t.Run("reminders toggle off", func(t *testing.T) {
		w := authedRequest(r, "POST", "/api/user/reminders", map[string]interface{}{
			"enabled": false,
		}, token)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Reminders disabled", response["message"])

		w = authedRequest(r, "GET", "/api/user/profile", nil, token)
		var profile map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
		assert.Equal(t, false, profile["reminders_enabled"])
	})

	t.Run("missing enabled field fails binding", func(t *testing.T) {
		w := authedRequest(r, "POST", "/api/user/reminders", map[string]interface{}{}, token)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDashboardAfterScreening(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	token, userID := signupAndLoginWithID(t, r, "9876500002")

	t.Run("empty dashboard before any screening", func(t *testing.T) {
		w := authedRequest(r, "GET", "/api/user/dashboard", nil, token)
		assert.Equal(t, http.StatusOK, w.Code)

		var dashboard history.Dashboard
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dashboard))
		assert.Nil(t, dashboard.Risk)
		assert.Empty(t, dashboard.RecommendationsPreview)
	})

	// The app submits surveys with the account id as the screening user id
	submitSurvey(t, r, userID)

	t.Run("dashboard reflects the latest screening", func(t *testing.T) {
		w := authedRequest(r, "GET", "/api/user/dashboard", nil, token)
		assert.Equal(t, http.StatusOK, w.Code)

		var dashboard history.Dashboard
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dashboard))
		require.NotNil(t, dashboard.Risk)
		assert.Equal(t, "High", dashboard.Risk.RiskLevel)
		assert.Equal(t, float64(25), dashboard.Risk.RiskScore)
		assert.NotEmpty(t, dashboard.Risk.NextReassessmentDate)
		assert.NotEmpty(t, dashboard.RecommendationsPreview)
		assert.LessOrEqual(t, len(dashboard.RecommendationsPreview), 3)
	})

	t.Run("recommendations list the stored lines", func(t *testing.T) {
		w := authedRequest(r, "GET", "/api/user/recommendations", nil, token)
		assert.Equal(t, http.StatusOK, w.Code)

		var response history.RecommendationsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.NotZero(t, response.Count)

		categories := make(map[string]bool)
		for _, item := range response.Recommendations {
			categories[item.Category] = true
			assert.NotEmpty(t, item.Text)
		}
		assert.True(t, categories["task"])
		assert.True(t, categories["alert"])
	})
}

func TestPaymentRoutes_Unconfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := setupRouter(t)

	w := jsonRequest(r, "POST", "/payment/create-session", map[string]interface{}{
		"type":   "donation",
		"amount": 500,
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "payment system not configured")
}

func signupAndLogin(t *testing.T, r *gin.Engine, phoneNumber string) string {
	t.Helper()
	token, _ := signupAndLoginWithID(t, r, phoneNumber)
	return token
}

func signupAndLoginWithID(t *testing.T, r *gin.Engine, phoneNumber string) (string, string) {
	t.Helper()

	w := jsonRequest(r, "POST", "/api/auth/signup", map[string]interface{}{
		"full_name":    "Test Account",
		"phone_number": phoneNumber,
		"password":     "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code, "signup failed: %s", w.Body.String())

	w = jsonRequest(r, "POST", "/api/auth/login", map[string]interface{}{
		"phone_number": phoneNumber,
		"password":     "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())

	var loginResponse struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResponse))
	require.NotEmpty(t, loginResponse.AccessToken)

	return loginResponse.AccessToken, loginResponse.User.ID
}

func authedRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	return w
}
