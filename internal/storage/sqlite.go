package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/praxis-labs/mentat/internal/container"
)

// SQLiteStore is a container.DataStorage backed by a local SQLite
// file, the default backend for per-user local operation.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore creates a store for the given database file. The file
// is opened on Initialize.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Initialize opens the database and creates the schema. Calling it on
// an open store is a no-op.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("storage: sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := createSQLiteTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func createSQLiteTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS container_states (
			user_id TEXT PRIMARY KEY,
			state_data BLOB NOT NULL,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS interaction_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			details TEXT,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_interaction_user_time
			ON interaction_data(user_id, timestamp DESC);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// SaveState upserts the user's engine state.
func (s *SQLiteStore) SaveState(ctx context.Context, userID string, state container.ContainerState) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	_, err = db.ExecContext(ctx, `
		INSERT INTO container_states (user_id, state_data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state_data = excluded.state_data,
			version = excluded.version,
			updated_at = excluded.updated_at
	`, userID, state.Payload, state.Version, now, now)
	if err != nil {
		return fmt.Errorf("save state for %s: %w", userID, err)
	}
	return nil
}

// LoadState returns the user's saved state, or nil when none exists.
func (s *SQLiteStore) LoadState(ctx context.Context, userID string) (*container.ContainerState, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var state container.ContainerState
	err = db.QueryRowContext(ctx,
		`SELECT state_data, version FROM container_states WHERE user_id = ?`,
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
func (s *SQLiteStore) SaveInteraction(ctx context.Context, event container.InteractionEvent) error {
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
		VALUES (?, ?, ?, ?)
	`, event.UserID, event.Type, string(details), event.Timestamp)
	if err != nil {
		return fmt.Errorf("save interaction for %s: %w", event.UserID, err)
	}
	return nil
}

// LoadRecent returns the user's newest events, newest first, optionally
// filtered by event type.
func (s *SQLiteStore) LoadRecent(ctx context.Context, userID string, limit int, eventTypes ...string) ([]container.InteractionEvent, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT type, details, timestamp FROM interaction_data WHERE user_id = ?`
	args := []interface{}{userID}
	if len(eventTypes) > 0 {
		query += ` AND type IN (` + questionMarks(len(eventTypes)) + `)`
		for _, t := range eventTypes {
			args = append(args, t)
		}
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
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
			details sql.NullString
		)
		if err := rows.Scan(&ev.Type, &details, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		ev.UserID = userID
		if details.Valid {
			attrs, err := decodeAttributes([]byte(details.String))
			if err != nil {
				return nil, err
			}
			ev.Attributes = attrs
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return events, nil
}

// DeleteUserData removes the user's state and interaction log in one
// transaction.
func (s *SQLiteStore) DeleteUserData(ctx context.Context, userID string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete for %s: %w", userID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interaction_data WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete interactions for %s: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM container_states WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete state for %s: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete for %s: %w", userID, err)
	}
	return nil
}

// Release closes the database.
func (s *SQLiteStore) Release(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close sqlite database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func questionMarks(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
