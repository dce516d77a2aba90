package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

// NewDB creates a new database connection with optimized pooling
func NewDB(dataDir string) (*DB, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ossopulse.db")

	// Configure connection string for better performance
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pooling for better performance
	pool := NewConnectionPool(db, 25, 5, 5*time.Minute) // 25 max open, 5 idle, 5min lifetime

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	// Run migrations
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize prepared statements
	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		// Accounts table
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			phone_number TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			preferred_language TEXT NOT NULL DEFAULT 'english',
			reminders_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			last_login DATETIME
		)`,

		// Screening history. user_id comes from the X-User-Id header and
		// need not reference users(id).
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			predictions_json TEXT NOT NULL,
			probabilities_json TEXT,
			inputs_json TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Latest risk snapshots for the dashboard, 0-100 scale
		`CREATE TABLE IF NOT EXISTS risk_assessments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			risk_score REAL NOT NULL,
			risk_level TEXT NOT NULL,
			next_reassessment_date TEXT,
			created_at DATETIME NOT NULL
		)`,

		// Generated tasks and alerts, category 'task' or 'alert'
		`CREATE TABLE IF NOT EXISTS recommendations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			recommendation_text TEXT NOT NULL,
			category TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Supporter payments. user_id is NULL for anonymous donations.
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			stripe_session_id TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			currency TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone_number)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_user_created ON predictions(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_user_created ON risk_assessments(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_rec_user_created ON recommendations(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_prediction": `INSERT INTO predictions (id, user_id, endpoint, predictions_json, probabilities_json, inputs_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,

		"insert_risk_assessment": `INSERT INTO risk_assessments (id, user_id, risk_score, risk_level, next_reassessment_date, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,

		"insert_recommendation": `INSERT INTO recommendations (id, user_id, recommendation_text, category, created_at)
			VALUES (?, ?, ?, ?, ?)`,

		"insert_payment": `INSERT INTO payments (id, user_id, stripe_session_id, amount_cents, currency, kind, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,

		"get_user_by_phone": `SELECT id, full_name, phone_number, password_hash, preferred_language, reminders_enabled, created_at, last_login
			FROM users WHERE phone_number = ?`,

		"get_user_by_id": `SELECT id, full_name, phone_number, password_hash, preferred_language, reminders_enabled, created_at, last_login
			FROM users WHERE id = ?`,

		"get_history": `SELECT id, user_id, endpoint, predictions_json, probabilities_json, inputs_json, created_at
			FROM predictions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,

		"get_latest_risk": `SELECT id, user_id, risk_score, risk_level, next_reassessment_date, created_at
			FROM risk_assessments WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`,

		"get_recommendations": `SELECT id, user_id, recommendation_text, category, created_at
			FROM recommendations WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	// Close all prepared statements
	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	// Clear the map
	db.prepared = make(map[string]*sql.Stmt)

	// Close the database connection
	return db.DB.Close()
}
