package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// DeletionCounts reports rows removed per table by a deletion sweep
type DeletionCounts struct {
	Predictions     int64 `json:"predictions"`
	RiskAssessments int64 `json:"risk_assessments"`
	Recommendations int64 `json:"recommendations"`
}

// Total returns the combined number of deleted rows
func (c DeletionCounts) Total() int64 {
	return c.Predictions + c.RiskAssessments + c.Recommendations
}

// CreateUser inserts a new account row
func (r *Repository) CreateUser(user *User) error {
	_, err := r.db.Exec(`
		INSERT INTO users (id, full_name, phone_number, password_hash, preferred_language, reminders_enabled, created_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
	`, user.ID, user.FullName, user.PhoneNumber, user.PasswordHash,
		user.PreferredLanguage, user.RemindersEnabled, user.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByPhone returns the account registered under the phone number.
// sql.ErrNoRows is passed through so callers can branch on it.
func (r *Repository) GetUserByPhone(phoneNumber string) (*User, error) {
	stmt, err := r.db.GetPreparedStatement("get_user_by_phone")
	if err != nil {
		return nil, err
	}

	user, err := scanUser(stmt.QueryRow(phoneNumber))
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by phone: %w", err)
	}

	return user, nil
}

// GetUserByID returns the account with the given id.
// sql.ErrNoRows is passed through so callers can branch on it.
func (r *Repository) GetUserByID(id string) (*User, error) {
	stmt, err := r.db.GetPreparedStatement("get_user_by_id")
	if err != nil {
		return nil, err
	}

	user, err := scanUser(stmt.QueryRow(id))
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by id: %w", err)
	}

	return user, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var lastLogin sql.NullTime

	err := row.Scan(&user.ID, &user.FullName, &user.PhoneNumber, &user.PasswordHash,
		&user.PreferredLanguage, &user.RemindersEnabled, &user.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}

	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}

	return &user, nil
}

// UpdateLastLogin stamps the account's last successful login
func (r *Repository) UpdateLastLogin(userID string) error {
	_, err := r.db.Exec(`UPDATE users SET last_login = ? WHERE id = ?`, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

// UpdatePreferredLanguage stores the account's UI language
func (r *Repository) UpdatePreferredLanguage(userID, language string) error {
	_, err := r.db.Exec(`UPDATE users SET preferred_language = ? WHERE id = ?`, language, userID)
	if err != nil {
		return fmt.Errorf("failed to update preferred language: %w", err)
	}

	return nil
}

// UpdateRemindersEnabled stores the account's reminder toggle
func (r *Repository) UpdateRemindersEnabled(userID string, enabled bool) error {
	_, err := r.db.Exec(`UPDATE users SET reminders_enabled = ? WHERE id = ?`, enabled, userID)
	if err != nil {
		return fmt.Errorf("failed to update reminders: %w", err)
	}

	return nil
}

// SavePrediction stores one screening history entry
func (r *Repository) SavePrediction(prediction *Prediction) error {
	stmt, err := r.db.GetPreparedStatement("insert_prediction")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(prediction.ID, prediction.UserID, prediction.Endpoint,
		prediction.PredictionsJSON, prediction.ProbabilitiesJSON, prediction.InputsJSON,
		prediction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}

	return nil
}

// GetHistory returns the user's stored screenings, newest first
func (r *Repository) GetHistory(userID string, limit int) ([]Prediction, error) {
	stmt, err := r.db.GetPreparedStatement("get_history")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []Prediction
	for rows.Next() {
		var prediction Prediction
		var probabilities sql.NullString

		err := rows.Scan(&prediction.ID, &prediction.UserID, &prediction.Endpoint,
			&prediction.PredictionsJSON, &probabilities, &prediction.InputsJSON,
			&prediction.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}

		prediction.ProbabilitiesJSON = probabilities.String
		history = append(history, prediction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	return history, nil
}

// SaveRiskAssessment stores a risk snapshot
func (r *Repository) SaveRiskAssessment(assessment *RiskAssessment) error {
	stmt, err := r.db.GetPreparedStatement("insert_risk_assessment")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(assessment.ID, assessment.UserID, assessment.RiskScore,
		assessment.RiskLevel, assessment.NextReassessmentDate, assessment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save risk assessment: %w", err)
	}

	return nil
}

// GetLatestRiskAssessment returns the user's most recent risk snapshot.
// sql.ErrNoRows is passed through so callers can branch on it.
func (r *Repository) GetLatestRiskAssessment(userID string) (*RiskAssessment, error) {
	stmt, err := r.db.GetPreparedStatement("get_latest_risk")
	if err != nil {
		return nil, err
	}

	var assessment RiskAssessment
	err = stmt.QueryRow(userID).Scan(&assessment.ID, &assessment.UserID,
		&assessment.RiskScore, &assessment.RiskLevel, &assessment.NextReassessmentDate,
		&assessment.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest risk assessment: %w", err)
	}

	return &assessment, nil
}

// SaveRecommendations stores generated task and alert lines for the user in
// a single transaction
func (r *Repository) SaveRecommendations(userID string, tasks, alerts []string) error {
	if len(tasks)+len(alerts) == 0 {
		return nil
	}

	stmt, err := r.db.GetPreparedStatement("insert_recommendation")
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStmt := tx.Stmt(stmt)
	defer txStmt.Close()

	for _, text := range tasks {
		rec := NewRecommendation(userID, text, CategoryTask)
		if _, err := txStmt.Exec(rec.ID, rec.UserID, rec.Text, rec.Category, rec.CreatedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert recommendation: %w", err)
		}
	}

	for _, text := range alerts {
		rec := NewRecommendation(userID, text, CategoryAlert)
		if _, err := txStmt.Exec(rec.ID, rec.UserID, rec.Text, rec.Category, rec.CreatedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert recommendation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recommendations: %w", err)
	}

	return nil
}

// GetRecommendations returns the user's stored recommendations, newest
// first. A negative limit returns every row.
func (r *Repository) GetRecommendations(userID string, limit int) ([]Recommendation, error) {
	stmt, err := r.db.GetPreparedStatement("get_recommendations")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recommendations []Recommendation
	for rows.Next() {
		var rec Recommendation
		err := rows.Scan(&rec.ID, &rec.UserID, &rec.Text, &rec.Category, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recommendations = append(recommendations, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recommendations: %w", err)
	}

	return recommendations, nil
}

// DeleteUserData removes every stored screening row for the user
func (r *Repository) DeleteUserData(userID string) (DeletionCounts, error) {
	var counts DeletionCounts

	tx, err := r.db.Begin()
	if err != nil {
		return counts, fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM predictions WHERE user_id = ?`, userID)
	if err != nil {
		tx.Rollback()
		return DeletionCounts{}, fmt.Errorf("failed to delete predictions: %w", err)
	}
	counts.Predictions, _ = res.RowsAffected()

	res, err = tx.Exec(`DELETE FROM risk_assessments WHERE user_id = ?`, userID)
	if err != nil {
		tx.Rollback()
		return DeletionCounts{}, fmt.Errorf("failed to delete risk assessments: %w", err)
	}
	counts.RiskAssessments, _ = res.RowsAffected()

	res, err = tx.Exec(`DELETE FROM recommendations WHERE user_id = ?`, userID)
	if err != nil {
		tx.Rollback()
		return DeletionCounts{}, fmt.Errorf("failed to delete recommendations: %w", err)
	}
	counts.Recommendations, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return DeletionCounts{}, fmt.Errorf("failed to commit deletion: %w", err)
	}

	return counts, nil
}

// PurgeBefore removes screening rows older than the cutoff across all
// history tables
func (r *Repository) PurgeBefore(cutoff time.Time) (DeletionCounts, error) {
	var counts DeletionCounts

	tx, err := r.db.Begin()
	if err != nil {
		return counts, fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM predictions WHERE created_at < ?`, cutoff)
	if err != nil {
		tx.Rollback()
		return DeletionCounts{}, fmt.Errorf("failed to purge predictions: %w", err)
	}
	counts.Predictions, _ = res.RowsAffected()

	res, err = tx.Exec(`DELETE FROM risk_assessments WHERE created_at < ?`, cutoff)
	if err != nil {
		tx.Rollback()
		return DeletionCounts{}, fmt.Errorf("failed to purge risk assessments: %w", err)
	}
	counts.RiskAssessments, _ = res.RowsAffected()

	res, err = tx.Exec(`DELETE FROM recommendations WHERE created_at < ?`, cutoff)
	if err != nil {
		tx.Rollback()
		return DeletionCounts{}, fmt.Errorf("failed to purge recommendations: %w", err)
	}
	counts.Recommendations, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return DeletionCounts{}, fmt.Errorf("failed to commit purge: %w", err)
	}

	return counts, nil
}

// CreatePayment records a completed supporter payment. An empty user id is
// stored as NULL so anonymous donations do not reference the users table.
func (r *Repository) CreatePayment(userID, stripeSessionID, currency, kind string, amountCents int64) (*Payment, error) {
	payment := NewPayment(userID, stripeSessionID, currency, kind, amountCents)

	stmt, err := r.db.GetPreparedStatement("insert_payment")
	if err != nil {
		return nil, err
	}

	dbUserID := sql.NullString{String: payment.UserID, Valid: payment.UserID != ""}
	_, err = stmt.Exec(payment.ID, dbUserID, payment.StripeSessionID, payment.AmountCents,
		payment.Currency, payment.Kind, payment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return payment, nil
}
