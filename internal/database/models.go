package database

import (
	"time"

	"github.com/google/uuid"
)

// Recommendation categories.
const (
	CategoryTask  = "task"
	CategoryAlert = "alert"
)

// User represents a registered account. Screening endpoints also accept
// anonymous header-scoped user ids, so history tables do not require a row
// here.
type User struct {
	ID                string     `json:"id" db:"id"`
	FullName          string     `json:"full_name" db:"full_name"`
	PhoneNumber       string     `json:"phone_number" db:"phone_number"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	PreferredLanguage string     `json:"preferred_language" db:"preferred_language"`
	RemindersEnabled  bool       `json:"reminders_enabled" db:"reminders_enabled"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	LastLogin         *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// Prediction is one stored screening result. The three JSON columns hold the
// encoded lists and inputs exactly as returned to the caller.
type Prediction struct {
	ID                string    `json:"id" db:"id"`
	UserID            string    `json:"user_id" db:"user_id"`
	Endpoint          string    `json:"endpoint" db:"endpoint"`
	PredictionsJSON   string    `json:"-" db:"predictions_json"`
	ProbabilitiesJSON string    `json:"-" db:"probabilities_json"`
	InputsJSON        string    `json:"-" db:"inputs_json"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// RiskAssessment is a risk snapshot with the score on the 0-100 scale
type RiskAssessment struct {
	ID                   string    `json:"id" db:"id"`
	UserID               string    `json:"user_id" db:"user_id"`
	RiskScore            float64   `json:"risk_score" db:"risk_score"`
	RiskLevel            string    `json:"risk_level" db:"risk_level"`
	NextReassessmentDate string    `json:"next_reassessment_date" db:"next_reassessment_date"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// Recommendation is one stored task or alert line
type Recommendation struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Text      string    `json:"text" db:"recommendation_text"`
	Category  string    `json:"category" db:"category"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Payment represents a supporter donation or subscription
type Payment struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id,omitempty" db:"user_id"`
	StripeSessionID string    `json:"stripe_session_id" db:"stripe_session_id"`
	AmountCents     int64     `json:"amount_cents" db:"amount_cents"` // Amount in cents
	Currency        string    `json:"currency" db:"currency"`
	Kind            string    `json:"kind" db:"kind"` // donation, subscription
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// NewUser creates an account with a generated ID and default preferences
func NewUser(fullName, phoneNumber, passwordHash string) *User {
	return &User{
		ID:                uuid.New().String(),
		FullName:          fullName,
		PhoneNumber:       phoneNumber,
		PasswordHash:      passwordHash,
		PreferredLanguage: "english",
		RemindersEnabled:  true,
		CreatedAt:         time.Now(),
	}
}

// NewPrediction creates a screening history entry with a generated ID
func NewPrediction(userID, endpoint, predictionsJSON, probabilitiesJSON, inputsJSON string) *Prediction {
	return &Prediction{
		ID:                uuid.New().String(),
		UserID:            userID,
		Endpoint:          endpoint,
		PredictionsJSON:   predictionsJSON,
		ProbabilitiesJSON: probabilitiesJSON,
		InputsJSON:        inputsJSON,
		CreatedAt:         time.Now(),
	}
}

// NewRiskAssessment creates a risk snapshot with a generated ID
func NewRiskAssessment(userID string, riskScore float64, riskLevel, nextReassessmentDate string) *RiskAssessment {
	return &RiskAssessment{
		ID:                   uuid.New().String(),
		UserID:               userID,
		RiskScore:            riskScore,
		RiskLevel:            riskLevel,
		NextReassessmentDate: nextReassessmentDate,
		CreatedAt:            time.Now(),
	}
}

// NewRecommendation creates a stored recommendation line with a generated ID
func NewRecommendation(userID, text, category string) *Recommendation {
	return &Recommendation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      text,
		Category:  category,
		CreatedAt: time.Now(),
	}
}

// NewPayment creates a payment record with a generated ID
func NewPayment(userID, stripeSessionID, currency, kind string, amountCents int64) *Payment {
	return &Payment{
		ID:              uuid.New().String(),
		UserID:          userID,
		StripeSessionID: stripeSessionID,
		AmountCents:     amountCents,
		Currency:        currency,
		Kind:            kind,
		CreatedAt:       time.Now(),
	}
}
