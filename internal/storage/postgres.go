package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/praxis-labs/mentat/internal/container"
)

// PostgresConfig holds the connection settings for a PostgresStore.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// PostgresStore is a container.DataStorage backed by PostgreSQL, the
// backend for shared deployments.
type PostgresStore struct {
	cfg PostgresConfig

	mu sync.RWMutex
	db *sql.DB
}

// NewPostgresStore creates a store for the given connection settings.
// The connection is opened on Initialize.
func NewPostgresStore(cfg PostgresConfig) *PostgresStore {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	return &PostgresStore{cfg: cfg}
}

// Initialize opens the connection pool and creates the schema. Calling
// it on an open store is a no-op.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password, s.cfg.Database, s.cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping postgres database: %w", err)
	}

	if err := createPostgresTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func createPostgresTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS container_states (
			user_id VARCHAR(255) PRIMARY KEY,
			state_data BYTEA NOT NULL,
			version INTEGER NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS interaction_data (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			type VARCHAR(255) NOT NULL,
			details JSONB,
			timestamp BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interaction_user_time
			ON interaction_data (user_id, timestamp DESC)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// SaveState upserts the user's engine state.
func (s *PostgresStore) SaveState(ctx context.Context, userID string, state container.ContainerState) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	_, err = db.ExecContext(ctx, `
		INSERT INTO container_states (user_id, state_data, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			state_data = EXCLUDED.state_data,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
	`, userID, state.Payload, state.Version, now, now)
	if err != nil {
		return fmt.Errorf("save state for %s: %w", userID, err)
	}
	return nil
}

// LoadState returns the user's saved state, or nil when none exists.
func (s *PostgresStore) LoadState(ctx context.Context, userID string) (*container.ContainerState, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var state container.ContainerState
	err = db.QueryRowContext(ctx,
		`SELECT state_data, version FROM container_states WHERE user_id = $1`,
		userID,
	).Scan(&state.Payload, &state.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load state for %s: %w", userID, err)
	}
	return &state, nil
}

// SaveInteraction appends one event to the interaction log.
func (s *PostgresStore) SaveInteraction(ctx context.Context, event container.InteractionEvent) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	details, err := encodeAttributes(event.Attributes)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO interaction_data (user_id, type, details, timestamp)
		VALUES ($1, $2, $3, $4)
	`, event.UserID, event.Type, details, event.Timestamp)
	if err != nil {
		return fmt.Errorf("save interaction for %s: %w", event.UserID, err)
	}
	return nil
}

// LoadRecent returns the user's newest events, newest first, optionally
// filtered by event type.
func (s *PostgresStore) LoadRecent(ctx context.Context, userID string, limit int, eventTypes ...string) ([]container.InteractionEvent, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT type, details, timestamp FROM interaction_data WHERE user_id = $1`
	args := []interface{}{userID}
	next := 2
	if len(eventTypes) > 0 {
		marks := make([]string, len(eventTypes))
		for i, t := range eventTypes {
			marks[i] = fmt.Sprintf("$%d", next)
			next++
			args = append(args, t)
		}
		query += ` AND type IN (` + strings.Join(marks, ", ") + `)`
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC, id DESC LIMIT $%d`, next)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load recent for %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var events []container.InteractionEvent
	for rows.Next() {
		var (
			ev      container.InteractionEvent
			details []byte
		)
		if err := rows.Scan(&ev.Type, &details, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		ev.UserID = userID
		attrs, err := decodeAttributes(details)
		if err != nil {
			return nil, err
		}
		ev.Attributes = attrs
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return events, nil
}

// DeleteUserData removes the user's state and interaction log in one
// transaction.
func (s *PostgresStore) DeleteUserData(ctx context.Context, userID string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete for %s: %w", userID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interaction_data WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete interactions for %s: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM container_states WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete state for %s: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete for %s: %w", userID, err)
	}
	return nil
}

// Release closes the connection pool.
func (s *PostgresStore) Release(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close postgres database: %w", err)
	}
	return nil
}

func (s *PostgresStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}
