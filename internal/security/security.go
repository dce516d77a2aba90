package security

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ossopulse/ossopulse/internal/database"
	apperrors "github.com/ossopulse/ossopulse/internal/errors"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxUserIDLength   int           `json:"max_user_id_length"`
	MaxRequestsPerMin int           `json:"max_requests_per_min"`
	EnableCORS        bool          `json:"enable_cors"`
	AllowedOrigins    []string      `json:"allowed_origins"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	RequestTimeout    time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxUserIDLength:   128,
		MaxRequestsPerMin: 60,
		EnableCORS:        true,
		AllowedOrigins:    []string{"http://localhost:3000", "http://localhost:5173", "https://js.stripe.com", "https://checkout.stripe.com"},
		TrustedProxies:    []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout:    30 * time.Second,
	}
}

// SecurityMiddleware provides the request guards and hardening middleware
type SecurityMiddleware struct {
	config      SecurityConfig
	apiKey      string
	auth        *database.AuthService
	rateLimiter *rate.Limiter
	ipLimiters  map[string]*rate.Limiter
	mu          sync.Mutex
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{
		config:      config,
		rateLimiter: rate.NewLimiter(rate.Limit(config.MaxRequestsPerMin/60.0), config.MaxRequestsPerMin/10),
		ipLimiters:  make(map[string]*rate.Limiter),
	}
}

// SetAPIKey sets the service API key the screening endpoints require
func (sm *SecurityMiddleware) SetAPIKey(apiKey string) {
	sm.apiKey = apiKey
}

// SetAuthService sets the auth service used to verify session tokens
func (sm *SecurityMiddleware) SetAuthService(auth *database.AuthService) {
	sm.auth = auth
}

// ValidateUserID checks a caller-supplied user id header value
func (sm *SecurityMiddleware) ValidateUserID(userID string) error {
	if len(userID) > sm.config.MaxUserIDLength {
		return fmt.Errorf("user id exceeds maximum length of %d characters", sm.config.MaxUserIDLength)
	}

	if strings.Contains(userID, "\x00") {
		return fmt.Errorf("user id contains invalid characters")
	}

	if !utf8.ValidString(userID) {
		return fmt.Errorf("user id contains invalid UTF-8 encoding")
	}

	return nil
}

// RequireAPIKey guards screening endpoints with the service API key. The key
// is read from "Authorization: Bearer <key>" or the x-api-key header.
func (sm *SecurityMiddleware) RequireAPIKey(c *gin.Context) {
	if sm.apiKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Server API key not configured. Set API_KEY env var.",
		})
		c.Abort()
		return
	}

	var token string
	authHeader := c.GetHeader("Authorization")
	prefix := "Bearer "
	if strings.HasPrefix(authHeader, prefix) {
		token = strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	} else {
		token = c.GetHeader("X-API-Key")
	}

	if token != sm.apiKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing API key"})
		c.Abort()
		return
	}

	c.Next()
}

// RequireUserID extracts the screening user id from the X-User-Id header and
// stores it in the request context. The id is an opaque caller-chosen value
// and need not belong to a registered account.
func (sm *SecurityMiddleware) RequireUserID(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader("X-User-Id"))
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user id header 'X-User-Id'"})
		c.Abort()
		return
	}

	if err := sm.ValidateUserID(userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid user id header: %v", err)})
		c.Abort()
		return
	}

	c.Set("user_id", userID)
	c.Next()
}

// RequireAuth verifies the JWT session token and stores the claims in the
// request context
func (sm *SecurityMiddleware) RequireAuth(c *gin.Context) {
	if sm.auth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication is not configured"})
		c.Abort()
		return
	}

	var token string
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) < 2 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}
		token = parts[1]
	}

	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is missing"})
		c.Abort()
		return
	}

	claims, err := sm.auth.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errorMessage(err)})
		c.Abort()
		return
	}

	c.Set("user_id", claims.UserID)
	c.Set("phone_number", claims.PhoneNumber)
	c.Next()
}

func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.ErrBuilder.Msg
	}
	return err.Error()
}

// RateLimitByIP implements per-IP rate limiting
func (sm *SecurityMiddleware) RateLimitByIP(c *gin.Context) {
	clientIP := c.ClientIP()

	sm.mu.Lock()
	limiter, exists := sm.ipLimiters[clientIP]
	if !exists {
		// Create limiter with burst capacity for initial requests
		rps := rate.Limit(sm.config.MaxRequestsPerMin / 60.0)
		// Allow burst of up to half the requests per minute for initial allowance
		burst := sm.config.MaxRequestsPerMin / 2
		if burst < 5 {
			burst = 5 // Minimum burst of 5 requests
		}
		limiter = rate.NewLimiter(rps, burst)
		sm.ipLimiters[clientIP] = limiter
	}
	sm.mu.Unlock()

	if !limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded for IP",
			"retry_after": "60", // seconds
		})
		c.Abort()
		return
	}

	c.Next()
}

// SecurityHeaders adds security headers to responses
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	// Prevent MIME type sniffing
	c.Header("X-Content-Type-Options", "nosniff")

	// Prevent clickjacking - allow Stripe checkout
	c.Header("X-Frame-Options", "SAMEORIGIN")

	// XSS protection
	c.Header("X-XSS-Protection", "1; mode=block")

	// HSTS when terminating TLS directly or explicitly enabled behind a proxy
	if c.Request.TLS != nil || os.Getenv("ENABLE_HSTS") == "true" {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Referrer Policy
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

	// Permissions Policy for camera/microphone (not needed)
	c.Header("Permissions-Policy", "camera=(), microphone=()")

	c.Next()
}

// ValidateContentType validates request content type
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")

	// Allow JSON and form-encoded content
	allowedTypes := []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"multipart/form-data",
	}

	if contentType != "" {
		found := false
		for _, allowed := range allowedTypes {
			if strings.Contains(strings.ToLower(contentType), allowed) {
				found = true
				break
			}
		}

		if !found {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "unsupported content type",
			})
			c.Abort()
			return
		}
	}

	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	// Create a timeout context
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	// Replace request context
	c.Request = c.Request.WithContext(ctx)

	// Set timeout header for client
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// RequestLogging provides secure request logging
func (sm *SecurityMiddleware) RequestLogging(c *gin.Context) {
	start := time.Now()
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery

	// Log request
	c.Next()

	// Calculate latency
	latency := time.Since(start)

	// Log response (excluding sensitive data)
	statusCode := c.Writer.Status()
	clientIP := c.ClientIP()
	method := c.Request.Method

	// Sanitize path for logging
	if raw != "" {
		path = path + "?" + raw
	}

	// Log successful requests at info level, errors at warn level
	if statusCode >= 400 {
		c.Error(fmt.Errorf("[SECURITY] %s %s %d %v %s",
			method, path, statusCode, latency, clientIP))
	} else {
		// Only log non-sensitive paths or truncate sensitive data
		if !strings.Contains(path, "/health") {
			fmt.Printf("[SECURITY] %s %s %d %v %s\n",
				method, path, statusCode, latency, clientIP)
		}
	}
}

// Cleanup periodically cleans up old rate limiters
func (sm *SecurityMiddleware) Cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for range ticker.C {
			sm.cleanupOldLimiters()
		}
	}()
}

// cleanupOldLimiters removes rate limiters for IPs that haven't been seen recently
func (sm *SecurityMiddleware) cleanupOldLimiters() {
	// In a production system, you'd want to track last seen time
	// For now, we'll keep all limiters to avoid complexity
	// This is a placeholder for future enhancement
}
