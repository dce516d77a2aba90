package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/ossopulse/ossopulse/internal/errors"
)

// SupportedLanguages lists the UI languages accounts may select.
var SupportedLanguages = []string{"english", "hindi", "telugu"}

// AuthService provides registration, login and session token handling
type AuthService struct {
	repo        *Repository
	jwtSecret   []byte
	tokenExpiry time.Duration
}

// NewAuthService creates a new auth service signing tokens with the secret
func NewAuthService(repo *Repository, jwtSecret string) *AuthService {
	return &AuthService{
		repo:        repo,
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: 24 * time.Hour,
	}
}

// SignupInput carries the registration form fields
type SignupInput struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// LoginResult bundles the signed token with the authenticated account
type LoginResult struct {
	AccessToken string
	User        *User
}

// TokenClaims are the session claims handlers read after verification
type TokenClaims struct {
	UserID      string
	PhoneNumber string
}

// Signup validates the registration input and creates the account
func (s *AuthService) Signup(input SignupInput) (*User, error) {
	fullName := strings.TrimSpace(input.FullName)
	phoneNumber := strings.TrimSpace(input.PhoneNumber)

	if fullName == "" {
		return nil, apperrors.NewValidationError("Full name is required")
	}
	if !isTenDigitPhone(phoneNumber) {
		return nil, apperrors.NewValidationError("Phone number must be exactly 10 digits")
	}
	if len(input.Password) < 6 {
		return nil, apperrors.NewValidationError("Password must be at least 6 characters")
	}

	if _, err := s.repo.GetUserByPhone(phoneNumber); err == nil {
		return nil, apperrors.NewConflictError("Phone number already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewDatabaseError("failed to check existing account", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to hash password", err)
	}

	user := NewUser(fullName, phoneNumber, string(hash))
	if err := s.repo.CreateUser(user); err != nil {
		// Two concurrent signups can pass the existence check; the UNIQUE
		// index decides the winner.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, apperrors.NewConflictError("Phone number already registered")
		}
		return nil, apperrors.NewDatabaseError("failed to create user", err)
	}

	return user, nil
}

// Login verifies the credentials and issues a session token
func (s *AuthService) Login(phoneNumber, password string) (*LoginResult, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)

	if !isTenDigitPhone(phoneNumber) {
		return nil, apperrors.NewValidationError("Invalid phone number")
	}
	if password == "" {
		return nil, apperrors.NewValidationError("Password is required")
	}

	user, err := s.repo.GetUserByPhone(phoneNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewAuthError("Invalid phone number or password")
		}
		return nil, apperrors.NewDatabaseError("failed to look up user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.NewAuthError("Invalid phone number or password")
	}

	if err := s.repo.UpdateLastLogin(user.ID); err != nil {
		return nil, apperrors.NewDatabaseError("failed to update last login", err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to generate token", err)
	}

	return &LoginResult{AccessToken: token, User: user}, nil
}

// GenerateToken signs a session token carrying the user id and phone number
func (s *AuthService) GenerateToken(user *User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":      user.ID,
		"phone_number": user.PhoneNumber,
		"exp":          now.Add(s.tokenExpiry).Unix(),
		"iat":          now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and verifies a session token
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.NewAuthError("Token has expired")
		}
		return nil, apperrors.NewAuthError("Invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperrors.NewAuthError("Invalid token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, apperrors.NewAuthError("Invalid token")
	}
	phoneNumber, _ := claims["phone_number"].(string)

	return &TokenClaims{UserID: userID, PhoneNumber: phoneNumber}, nil
}

// GetProfile returns the account fields for the verify and profile routes
func (s *AuthService) GetProfile(userID string) (*User, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("User")
		}
		return nil, apperrors.NewDatabaseError("failed to load user", err)
	}

	return user, nil
}

// UpdatePreferences validates and stores the preferred UI language
func (s *AuthService) UpdatePreferences(userID, preferredLanguage string) error {
	supported := false
	for _, lang := range SupportedLanguages {
		if preferredLanguage == lang {
			supported = true
			break
		}
	}
	if !supported {
		return apperrors.NewValidationError(fmt.Sprintf(
			"Invalid language. Must be one of: %s", strings.Join(SupportedLanguages, ", ")))
	}

	if err := s.repo.UpdatePreferredLanguage(userID, preferredLanguage); err != nil {
		return apperrors.NewDatabaseError("failed to update preferences", err)
	}

	return nil
}

// SetReminders persists the reminder toggle on the account row
func (s *AuthService) SetReminders(userID string, enabled bool) error {
	if err := s.repo.UpdateRemindersEnabled(userID, enabled); err != nil {
		return apperrors.NewDatabaseError("failed to update reminders", err)
	}

	return nil
}

func isTenDigitPhone(phoneNumber string) bool {
	if len(phoneNumber) != 10 {
		return false
	}
	for _, r := range phoneNumber {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
