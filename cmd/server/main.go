package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/ossopulse/ossopulse/docs"
	"github.com/ossopulse/ossopulse/internal/cache"
	"github.com/ossopulse/ossopulse/internal/database"
	"github.com/ossopulse/ossopulse/internal/encoding"
	"github.com/ossopulse/ossopulse/internal/errors"
	"github.com/ossopulse/ossopulse/internal/history"
	"github.com/ossopulse/ossopulse/internal/middleware"
	"github.com/ossopulse/ossopulse/internal/monitoring"
	"github.com/ossopulse/ossopulse/internal/privacy"
	"github.com/ossopulse/ossopulse/internal/ratelimit"
	"github.com/ossopulse/ossopulse/internal/resilience"
	"github.com/ossopulse/ossopulse/internal/risk"
	"github.com/ossopulse/ossopulse/internal/security"
	"github.com/ossopulse/ossopulse/internal/survey"
	"github.com/ossopulse/ossopulse/internal/types"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           OssoPulse API
// @version         1.0.0
// @description     AI-based osteoporosis risk screening service.
// @BasePath        /
func main() {
	startTime := time.Now()

	// Structured logging setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	modelPath := getEnvOrDefault("MODEL_PATH", filepath.Join(dataDir, "artifacts", "model.json"))
	featuresPath := getEnvOrDefault("FEATURES_PATH", filepath.Join(dataDir, "artifacts", "feature_order.json"))
	jwtSecret := getEnvOrDefault("JWT_SECRET", "your-super-secret-jwt-key-change-in-production")
	apiKey := getEnvOrDefault("API_KEY", "dev-key")
	redisAddr := os.Getenv("REDIS_URL")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := getEnvIntOrDefault("REDIS_DB", 0)
	stripeSecretKey := os.Getenv("STRIPE_SECRET_KEY")
	stripeWebhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	stripePriceID := os.Getenv("STRIPE_PRICE_ID")
	port := getEnvOrDefault("PORT", "8080")

	// Initialize database, repository and auth service
	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	authService := database.NewAuthService(repo, jwtSecret)

	// Initialize history and privacy services
	historyService := history.NewService(repo)
	privacyService := privacy.NewService(repo)
	privacyService.StartRetentionLoop(privacy.DefaultRetentionDays)

	// Initialize the screening pipeline. Artifacts are loaded lazily per
	// request so the server comes up even before the model is installed.
	modelStore := risk.NewModelStore(modelPath, featuresPath)
	screener := risk.NewScreener(modelStore)

	// Initialize compression middleware
	compressionConfig := middleware.DefaultCompressionConfig()
	compressionMiddleware := middleware.NewCompressionMiddleware(compressionConfig)

	// Initialize Stripe client when a key is configured; the payment routes
	// answer 503 without it
	var stripeClient *client.API
	if stripeSecretKey != "" {
		stripe.Key = stripeSecretKey
		stripeClient = &client.API{}
		stripeClient.Init(stripeSecretKey, nil)
	}

	r := gin.New()

	// Initialize monitoring system
	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()

	// Initialize memory monitor
	memoryMonitor := monitoring.NewMemoryMonitor(5*time.Second, 50*1024*1024, appLogger, appMetrics) // 50MB GC threshold
	memoryMonitor.Start()

	// Add compression middleware
	r.Use(compressionMiddleware.Handler())

	// Initialize distributed tracing
	monitoring.InitGlobalTracer("ossopulse", appLogger)

	// Initialize alerting system
	monitoring.InitGlobalAlertManager(appLogger, 30*time.Second, appMetrics)

	// Add Slack notifier when a webhook is configured
	slackNotifier := monitoring.NewSlackNotifier(os.Getenv("SLACK_WEBHOOK_URL"))
	if slackNotifier.WebhookURL != "" {
		alertManager := monitoring.GetGlobalAlertManager()
		alertManager.AddNotifier(slackNotifier)
	}

	// Start alerting in background
	monitoring.StartGlobalAlerting(context.Background())

	// Add monitoring middleware first (to capture all requests)
	r.Use(monitoring.MonitoringMiddleware(appMetrics, appLogger))
	r.Use(monitoring.TracingMiddleware(monitoring.GetGlobalTracer()))
	r.Use(monitoring.SecurityMonitoringMiddleware(appLogger))
	r.Use(monitoring.HealthMonitoringMiddleware(appMetrics))

	// Add error handling middleware
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	// CORS policy; ALLOWED_ORIGINS narrows the default dev origins
	securityConfig := security.DefaultSecurityConfig()
	if allowed := os.Getenv("ALLOWED_ORIGINS"); allowed != "" {
		securityConfig.AllowedOrigins = strings.Split(allowed, ",")
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = securityConfig.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-API-Key", "X-User-Id")
	r.Use(cors.New(corsConfig))

	// Security middleware setup
	securityMiddleware := security.NewSecurityMiddleware(securityConfig)
	securityMiddleware.SetAPIKey(apiKey)
	securityMiddleware.SetAuthService(authService)

	// Add security middleware
	r.Use(securityMiddleware.SecurityHeaders)
	r.Use(security.CSPMiddleware())
	r.Use(securityMiddleware.RequestTimeout)
	r.Use(securityMiddleware.ValidateContentType)
	r.Use(securityMiddleware.RateLimitByIP)

	// Response cache for repeated guided-form submissions (15 minutes TTL).
	// Attached per-route behind the API key check, never globally.
	appCache := cache.NewCache(15 * time.Minute)

	// Shared rate limiting: redis sliding window with in-memory fallback
	redisClient, err := ratelimit.NewRedisClient(redisAddr, redisPassword, redisDB)
	if err != nil {
		slog.Warn("Continuing with in-memory rate limiting", "error", err)
	}
	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)

	// Retry policy for transient sqlite busy errors on the write path
	resilience.RegisterServicePolicy("database", resilience.FastRetryPolicy)

	// Register services for degradation management
	resilience.RegisterService("database", func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if redisClient.IsEnabled() {
		resilience.RegisterService("redis", func(ctx context.Context) error {
			return redisClient.HealthCheck(ctx)
		})
	}
	resilience.RegisterService("model_store", func(ctx context.Context) error {
		status := modelStore.Status()
		if !status.ModelExists {
			return fmt.Errorf("model artifact missing at %s", status.ModelPath)
		}
		if !status.FeaturesExists {
			return fmt.Errorf("feature schema missing at %s", status.FeaturesPath)
		}
		return nil
	})

	// Start health checks in background
	resilience.StartHealthChecks(context.Background())

	// Circuit breaker around Stripe checkout calls
	stripeBreaker := resilience.GetCircuitBreaker("stripe", resilience.CircuitBreakerConfig{})

	// saveScreening persists one screening row off the request path and
	// drops the caller's cached history views.
	saveScreening := func(userID, endpoint string, predictions []int, probabilities []float64, inputs interface{}) {
		predictionsJSON, err := encoding.MarshalJSON(predictions)
		if err != nil {
			slog.Error("Failed to encode screening results", "error", err, "endpoint", endpoint)
			return
		}
		probabilitiesJSON, err := encoding.MarshalJSON(probabilities)
		if err != nil {
			slog.Error("Failed to encode screening results", "error", err, "endpoint", endpoint)
			return
		}
		inputsJSON, err := encoding.MarshalJSON(inputs)
		if err != nil {
			slog.Error("Failed to encode screening inputs", "error", err, "endpoint", endpoint)
			return
		}

		row := database.NewPrediction(userID, endpoint, string(predictionsJSON), string(probabilitiesJSON), string(inputsJSON))
		err = resilience.ExecuteWithRetry(context.Background(), "database", func() error {
			return repo.SavePrediction(row)
		})
		if err != nil {
			slog.Error("Failed to save screening history", "error", err, "endpoint", endpoint, "user_id", userID)
			resilience.RecordError("database", err)
			return
		}
		resilience.RecordRequest("database", true)
		historyService.Invalidate(userID)
	}

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
				"/artifacts_check",
				"/api/auth/signup",
				"/api/auth/login",
				"/api/auth/verify",
				"/api/user/profile",
				"/api/user/dashboard",
				"/api/user/recommendations",
				"/api/user/preferences",
				"/api/user/reminders",
				"/api/public/app-info",
				"/api/public/voice-script",
				"/payment/create-session",
				"/swagger/index.html",
			},
			"message": "Backend is running. Use POST /predict or /predict_form for inference, or GET /survey/questions to start a survey.",
		})
	})

	r.GET("/health", func(c *gin.Context) {
		services := resilience.GetAllServiceHealth()

		healthResponse := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   "1.0.0",
			"uptime":    time.Since(startTime).String(),
			"services":  services,
			"artifacts": modelStore.Status(),
		}

		// Check if any service is in emergency state
		for _, service := range services {
			if service.Level == resilience.LevelEmergency {
				healthResponse["status"] = "degraded"
				c.JSON(http.StatusServiceUnavailable, healthResponse)
				return
			}
		}

		c.JSON(http.StatusOK, healthResponse)
	})

	// Service health and circuit breaker monitoring endpoint
	r.GET("/health/services", func(c *gin.Context) {
		services := resilience.GetAllServiceHealth()
		circuitStats := resilience.GetCircuitBreakerStats()
		alerts := monitoring.GetGlobalAlertManager().GetActiveAlerts()

		response := gin.H{
			"services":         services,
			"circuit_breakers": circuitStats,
			"active_alerts":    alerts,
			"timestamp":        time.Now().Format(time.RFC3339),
		}

		c.JSON(http.StatusOK, response)
	})

	// Tracing endpoint to get current traces
	r.GET("/debug/traces", func(c *gin.Context) {
		tracer := monitoring.GetGlobalTracer()
		if tracer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracing not initialized"})
			return
		}

		traces := make(map[string]interface{})
		for spanID, span := range tracer.GetSpans() {
			traces[string(spanID)] = span
		}

		c.JSON(http.StatusOK, gin.H{
			"traces":    traces,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Alerting endpoints
	r.GET("/alerts", func(c *gin.Context) {
		alerts := monitoring.GetGlobalAlertManager().GetAlerts()
		c.JSON(http.StatusOK, gin.H{
			"alerts":    alerts,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	r.POST("/alerts/:id/silence", func(c *gin.Context) {
		alertID := c.Param("id")
		duration := 30 * time.Minute

		if durationParam := c.Query("duration"); durationParam != "" {
			if d, err := time.ParseDuration(durationParam); err == nil {
				duration = d
			}
		}

		monitoring.GetGlobalAlertManager().SilenceAlert(alertID, duration)

		c.JSON(http.StatusOK, gin.H{
			"message":  "Alert silenced",
			"alert_id": alertID,
			"duration": duration.String(),
		})
	})

	// Artifact presence probe for deploy checks
	r.GET("/artifacts_check", func(c *gin.Context) {
		c.JSON(http.StatusOK, modelStore.Status())
	})

	// Guided survey catalog for form-driven clients
	r.GET("/survey/questions", func(c *gin.Context) {
		questions := survey.Questions()
		c.JSON(http.StatusOK, gin.H{
			"total_questions": len(questions),
			"questions":       questions,
		})
	})

	// Public app metadata
	public := r.Group("/api/public")
	public.GET("/app-info", func(c *gin.Context) {
		c.JSON(http.StatusOK, survey.PublicAppInfo())
	})
	public.GET("/voice-script", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"script": survey.VoiceScript})
	})

	// Account endpoints
	auth := r.Group("/api/auth")
	auth.POST("/signup", limiter.RouteRateLimitMiddleware("signup", ratelimit.SignupRate), func(c *gin.Context) {
		var req types.SignupRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
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
			errors.LogError(c, appErr)
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

	auth.POST("/login", limiter.RouteRateLimitMiddleware("login", ratelimit.LoginRate), func(c *gin.Context) {
		var req types.LoginRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		result, err := authService.Login(req.PhoneNumber, req.Password)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
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
			errors.LogError(c, appErr)
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

	// Authenticated user surface
	userGroup := r.Group("/api/user", securityMiddleware.RequireAuth)
	userGroup.GET("/profile", func(c *gin.Context) {
		user, err := authService.GetProfile(c.GetString("user_id"))
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
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
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, dashboard)
	})

	userGroup.GET("/recommendations", func(c *gin.Context) {
		recommendations, err := historyService.Recommendations(c.GetString("user_id"))
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, recommendations)
	})

	userGroup.POST("/preferences", func(c *gin.Context) {
		var req types.PreferencesRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		userID := c.GetString("user_id")
		if err := authService.UpdatePreferences(userID, req.PreferredLanguage); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
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
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		userID := c.GetString("user_id")
		if err := authService.SetReminders(userID, *req.Enabled); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
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

	// Legacy inference surface: API key plus caller-chosen X-User-Id, shared
	// 100/hour window plus per-route limits
	legacy := r.Group("/", securityMiddleware.RequireAPIKey, securityMiddleware.RequireUserID, limiter.DefaultRateLimitMiddleware())

	legacy.POST("/predict", limiter.RouteRateLimitMiddleware("predict", ratelimit.ScreeningRate), func(c *gin.Context) {
		start := time.Now()

		var req types.PredictRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		assessments, err := screener.ScreenRecords(req.Records, resolveThreshold(req.Threshold), time.Now())
		if err != nil {
			appErr := screeningError(err)
			if appErr.HTTPStatus == http.StatusServiceUnavailable {
				appMetrics.IncrementArtifactFailure()
				resilience.RecordError("model_store", err)
			}
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		predictions := make([]int, len(assessments))
		probabilities := make([]float64, len(assessments))
		for i, a := range assessments {
			predictions[i] = a.Prediction
			probabilities[i] = a.Probability
			appMetrics.RecordScreening(a.Level)
			appLogger.ScreeningLogger("/predict", a.Probability, a.Level, time.Since(start), false)
		}

		userID := c.GetString("user_id")
		go saveScreening(userID, "predict", predictions, probabilities, req.Records)

		c.JSON(http.StatusOK, gin.H{
			"predictions":   predictions,
			"probabilities": probabilities,
		})
	})

	legacy.POST("/predict_form", limiter.RouteRateLimitMiddleware("predict_form", ratelimit.ScreeningRate), appCache.Middleware(appMetrics), func(c *gin.Context) {
		start := time.Now()

		var req types.PredictFormRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		results, err := screener.ScreenForms(req.Forms, resolveThreshold(req.Threshold), time.Now())
		if err != nil {
			appErr := screeningError(err)
			if appErr.HTTPStatus == http.StatusServiceUnavailable {
				appMetrics.IncrementArtifactFailure()
				resilience.RecordError("model_store", err)
			}
			errors.LogError(c, appErr)
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
			appMetrics.RecordScreening(res.Level)
			appLogger.ScreeningLogger("/predict_form", res.Probability, res.Level, time.Since(start), false)
		}

		userID := c.GetString("user_id")
		go saveScreening(userID, "predict_form", predictions, probabilities, req.Forms)

		c.JSON(http.StatusOK, gin.H{
			"predictions":   predictions,
			"probabilities": probabilities,
			"risk_levels":   riskLevels,
			"messages":      messages,
			"tasks":         tasks,
			"alerts":        alerts,
		})
	})

	legacy.POST("/survey/submit", limiter.RouteRateLimitMiddleware("survey_submit", ratelimit.ScreeningRate), func(c *gin.Context) {
		start := time.Now()

		var req types.SurveySubmitRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		result, err := screener.ScreenSurvey(req.SurveyData, resolveThreshold(req.Threshold), time.Now())
		if err != nil {
			appErr := screeningError(err)
			if appErr.HTTPStatus == http.StatusServiceUnavailable {
				appMetrics.IncrementArtifactFailure()
				resilience.RecordError("model_store", err)
			}
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		appMetrics.RecordScreening(result.Level)
		appLogger.ScreeningLogger("/survey/submit", result.Probability, result.Level, time.Since(start), false)

		// Persist the screening, the risk snapshot and the generated
		// recommendations off the request path
		userID := c.GetString("user_id")
		go func() {
			saveScreening(userID, "survey_submit", []int{result.Prediction}, []float64{result.Probability}, req.SurveyData)

			assessment := database.NewRiskAssessment(userID, float64(result.RiskScore), result.Level, result.NextReassessment)
			err := resilience.ExecuteWithRetry(context.Background(), "database", func() error {
				return repo.SaveRiskAssessment(assessment)
			})
			if err != nil {
				slog.Error("Failed to save risk assessment", "error", err, "user_id", userID)
				resilience.RecordError("database", err)
				return
			}

			if err := repo.SaveRecommendations(userID, result.RecommendedTasks, result.MedicalAlerts); err != nil {
				slog.Error("Failed to save recommendations", "error", err, "user_id", userID)
				resilience.RecordError("database", err)
				return
			}
			historyService.Invalidate(userID)
		}()

		c.JSON(http.StatusOK, result)
	})

	legacy.GET("/history", limiter.RouteRateLimitMiddleware("history", ratelimit.ScreeningRate), func(c *gin.Context) {
		limit := history.DefaultLimit
		if limitStr := c.Query("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil {
				limit = parsed
			}
		}

		response, err := historyService.ListHistory(c.GetString("user_id"), limit)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, response)
	})

	legacy.DELETE("/user_data", limiter.RouteRateLimitMiddleware("user_data", ratelimit.ScreeningRate), func(c *gin.Context) {
		userID := c.GetString("user_id")
		counts, err := privacyService.DeleteUserData(userID)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		historyService.Invalidate(userID)

		c.JSON(http.StatusOK, gin.H{
			"status":       "user data deleted",
			"rows_deleted": counts.Total(),
		})
	})

	// Create Stripe checkout session for supporter donations. A valid JWT
	// attributes the payment; anonymous donations are accepted.
	r.POST("/payment/create-session", func(c *gin.Context) {
		if stripeClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not configured"})
			return
		}

		userID := ""
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				if claims, err := authService.ValidateToken(parts[1]); err == nil {
					userID = claims.UserID
				}
			}
		}

		var req struct {
			Type   string `json:"type" binding:"required"` // "donation" or "subscription"
			Amount int64  `json:"amount,omitempty"`        // Cents, donations only
		}

		if err := c.BindJSON(&req); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		var sessionParams *stripe.CheckoutSessionParams

		switch req.Type {
		case "subscription":
			if stripePriceID == "" {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "subscriptions not configured"})
				return
			}

			sessionParams = &stripe.CheckoutSessionParams{
				PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
				LineItems: []*stripe.CheckoutSessionLineItemParams{
					{
						Price:    stripe.String(stripePriceID),
						Quantity: stripe.Int64(1),
					},
				},
				Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
				SuccessURL: stripe.String("https://ossopulse.app/payment/success?session_id={CHECKOUT_SESSION_ID}"),
				CancelURL:  stripe.String("https://ossopulse.app/payment/cancelled"),
				Metadata: map[string]string{
					"type": "subscription",
				},
			}
		case "donation":
			if req.Amount < 100 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "minimum donation is 100 cents"})
				return
			}

			sessionParams = &stripe.CheckoutSessionParams{
				PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
				LineItems: []*stripe.CheckoutSessionLineItemParams{
					{
						PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
							Currency: stripe.String("usd"),
							ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
								Name:        stripe.String("Donation to OssoPulse"),
								Description: stripe.String("Support for keeping the osteoporosis screening service free"),
							},
							UnitAmount: stripe.Int64(req.Amount),
						},
						Quantity: stripe.Int64(1),
					},
				},
				Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
				SuccessURL: stripe.String("https://ossopulse.app/payment/success?session_id={CHECKOUT_SESSION_ID}"),
				CancelURL:  stripe.String("https://ossopulse.app/payment/cancelled"),
				Metadata: map[string]string{
					"type":   "donation",
					"amount": fmt.Sprintf("%d", req.Amount),
				},
			}
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment type"})
			return
		}

		if userID != "" {
			sessionParams.ClientReferenceID = stripe.String(userID)
			sessionParams.Metadata["user_id"] = userID
		}

		var session *stripe.CheckoutSession
		err := stripeBreaker.Call(func() error {
			var err error
			session, err = stripeClient.CheckoutSessions.New(sessionParams)
			return err
		})
		appMetrics.RecordExternalAPIRequest("stripe", err == nil)
		if err != nil {
			appLogger.ExternalAPILogger("stripe", "POST", "api.stripe.com", 500, 0, false)

			var cbErr *resilience.CircuitBreakerError
			if stderrors.As(err, &cbErr) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system temporarily unavailable"})
				return
			}

			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		appLogger.ExternalAPILogger("stripe", "POST", "api.stripe.com", 200, 0, true)

		c.JSON(http.StatusOK, gin.H{
			"session_id": session.ID,
			"url":        session.URL,
		})
	})

	// Stripe webhook endpoint
	r.POST("/payment/webhook", func(c *gin.Context) {
		if stripeClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not configured"})
			return
		}

		const MaxBodyBytes = int64(65536)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), stripeWebhookSecret)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to verify webhook signature"})
			return
		}

		switch event.Type {
		case "checkout.session.completed":
			var session stripe.CheckoutSession
			if err := encoding.UnmarshalJSON(event.Data.Raw, &session); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse session"})
				return
			}

			kind := session.Metadata["type"]
			if kind == "" {
				kind = "donation"
			}

			// ClientReferenceID is empty for anonymous donations; the row
			// is stored without a user
			_, err := repo.CreatePayment(session.ClientReferenceID, session.ID, string(session.Currency), kind, session.AmountTotal)
			if err != nil {
				slog.Error("Failed to record payment", "error", err, "session_id", session.ID)
			} else {
				slog.Info("Payment recorded", "session_id", session.ID, "kind", kind, "amount_cents", session.AmountTotal)
			}
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	})

	// Rate limit status for the calling identity
	r.GET("/ratelimit/status", limiter.HandleRateLimitStatus())

	// Admin surface
	admin := r.Group("/admin", securityMiddleware.RequireAPIKey)
	admin.GET("/ratelimit", limiter.HandleAdminRateLimits())
	admin.GET("/ratelimit/metrics", limiter.HandleAdminRateLimitMetrics())
	admin.POST("/ratelimit/invalidate/user/:userID", limiter.HandleAdminInvalidateUser())
	admin.POST("/ratelimit/invalidate/ip/:ip", limiter.HandleAdminInvalidateIP())
	admin.POST("/health/reset/:service", func(c *gin.Context) {
		service := c.Param("service")
		resilience.ResetServiceHealth(service)
		c.JSON(http.StatusOK, gin.H{
			"message": "service health reset",
			"service": service,
		})
	})

	// Swagger documentation routes
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Metrics endpoint
	r.GET("/metrics", func(c *gin.Context) {
		stats := appMetrics.GetStats()
		c.JSON(http.StatusOK, stats)
	})

	// Cache stats endpoint
	r.GET("/cache/stats", func(c *gin.Context) {
		stats := appCache.Stats()
		c.JSON(http.StatusOK, stats)
	})

	// Database pool stats endpoint
	r.GET("/pools/database", func(c *gin.Context) {
		stats := db.GetPoolStats()
		c.JSON(http.StatusOK, gin.H{
			"pool":  "database",
			"stats": stats,
		})
	})

	// JSON codec stats endpoint
	r.GET("/pools/json", func(c *gin.Context) {
		stats := encoding.Stats()
		c.JSON(http.StatusOK, gin.H{
			"pool":  "json",
			"stats": stats,
		})
	})

	// Compression stats endpoint
	r.GET("/pools/compression", func(c *gin.Context) {
		stats := compressionMiddleware.GetStats()
		c.JSON(http.StatusOK, gin.H{
			"pool":  "compression",
			"stats": stats,
		})
	})

	// Memory stats endpoint
	r.GET("/memory", func(c *gin.Context) {
		stats := memoryMonitor.GetStats()
		c.JSON(http.StatusOK, stats)
	})

	// Memory optimization endpoint
	r.POST("/memory/optimize", func(c *gin.Context) {
		memoryMonitor.OptimizeMemory()
		c.JSON(http.StatusOK, gin.H{"message": "memory optimization triggered"})
	})

	// Force GC endpoint (development only)
	if os.Getenv("ENABLE_GC_CONTROL") == "true" {
		r.POST("/memory/gc", func(c *gin.Context) {
			memoryMonitor.ForceGC()
			c.JSON(http.StatusOK, gin.H{"message": "garbage collection triggered"})
		})
	}

	// Performance profiling endpoints (development only)
	if os.Getenv("ENABLE_PROFILING") == "true" {
		slog.Info("Enabling performance profiling endpoints")
		pprofGroup := r.Group("/debug/pprof")
		pprofGroup.GET("/", gin.WrapF(pprof.Index))
		pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
		pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	}

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port, "data_dir", dataDir, "model_path", modelPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	memoryMonitor.Stop()
	limiter.Close()
	errors.SafeClose(redisClient, "redis client")
	resilience.ShutdownHealthTracking()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// resolveThreshold applies the default decision cutoff when the request does
// not carry one.
func resolveThreshold(threshold *float64) float64 {
	if threshold != nil {
		return *threshold
	}
	return risk.DefaultThreshold
}

// screeningError maps pipeline failures onto transport errors.
func screeningError(err error) *errors.AppError {
	var validationErr *risk.ValidationError
	var encodingErr *risk.EncodingError
	var unavailableErr *risk.UnavailableError

	switch {
	case stderrors.As(err, &validationErr):
		return errors.NewValidationError(validationErr.Reason)
	case stderrors.As(err, &encodingErr):
		return errors.NewEncodingError(encodingErr.Reason, encodingErr.MissingFields)
	case stderrors.As(err, &unavailableErr):
		return errors.NewUnavailableError("model artifacts are not available", unavailableErr)
	default:
		return errors.ToAppError(err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
