package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite via modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// timeFormat sorts lexically in time order, unlike RFC3339Nano which trims
// trailing zeros.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		endpoint    TEXT NOT NULL,
		vendor      TEXT NOT NULL DEFAULT '',
		strategy    TEXT NOT NULL DEFAULT '',
		state_json  TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_endpoint ON sessions(endpoint, vendor);
	CREATE TABLE IF NOT EXISTS records (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id  TEXT NOT NULL,
		kind        TEXT NOT NULL,
		record_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, seq);
`

// NewSQLiteStore creates a new SQLite-backed store.
// dbPath is the path to the SQLite database file; use ":memory:" for testing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}
	// every connection to ":memory:" is a distinct database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save persists a State. If the state's ID is empty, a new UUID is
// generated and assigned.
func (s *SQLiteStore) Save(ctx context.Context, state *State) error {
	if state.ID == "" {
		state.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	state.UpdatedAt = now
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: marshal state: %w", err)
	}

	query := `
		INSERT INTO sessions (id, endpoint, vendor, strategy, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			endpoint   = excluded.endpoint,
			vendor     = excluded.vendor,
			strategy   = excluded.strategy,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		state.ID,
		state.Endpoint,
		state.Vendor,
		state.Strategy,
		string(stateJSON),
		state.CreatedAt.Format(timeFormat),
		state.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("session: save state: %w", err)
	}
	return nil
}

// Load retrieves the most recently updated State for endpoint and vendor.
// Returns (nil, nil) if no session is found.
func (s *SQLiteStore) Load(ctx context.Context, endpoint, vendor string) (*State, error) {
	if vendor == "" {
		return s.loadOne(ctx, `
			SELECT state_json FROM sessions
			WHERE endpoint = ?
			ORDER BY updated_at DESC
			LIMIT 1`, endpoint)
	}
	return s.loadOne(ctx, `
		SELECT state_json FROM sessions
		WHERE endpoint = ? AND vendor = ?
		ORDER BY updated_at DESC
		LIMIT 1`, endpoint, vendor)
}

// LoadByID retrieves a State by its unique ID.
// Returns (nil, nil) if no session is found.
func (s *SQLiteStore) LoadByID(ctx context.Context, id string) (*State, error) {
	return s.loadOne(ctx, `SELECT state_json FROM sessions WHERE id = ?`, id)
}

func (s *SQLiteStore) loadOne(ctx context.Context, query string, args ...any) (*State, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	var stateJSON string
	if err := row.Scan(&stateJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: scan row: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("session: unmarshal state: %w", err)
	}
	return &state, nil
}

// List returns a summary of all stored sessions, latest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*Summary, error) {
	query := `
		SELECT s.id, s.endpoint, s.vendor, s.strategy, s.updated_at,
			(SELECT count(*) FROM records r WHERE r.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("session: list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var (
			summary   Summary
			updatedAt string
		)
		if err := rows.Scan(&summary.ID, &summary.Endpoint, &summary.Vendor, &summary.Strategy, &updatedAt, &summary.Records); err != nil {
			return nil, fmt.Errorf("session: scan summary row: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			// Fall back to SQLite default format.
			t, err = time.Parse("2006-01-02 15:04:05", updatedAt)
			if err != nil {
				return nil, fmt.Errorf("session: parse updated_at %q: %w", updatedAt, err)
			}
		}
		summary.UpdatedAt = t
		summaries = append(summaries, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate rows: %w", err)
	}
	return summaries, nil
}

// Delete removes a session and its records.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("session: delete records: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("session: delete session: %w", err)
	}
	return nil
}

// Append stores records for session id, in order, in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, id string, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (session_id, kind, record_json) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("session: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("session: marshal record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, id, string(r.Kind), string(data)); err != nil {
			return fmt.Errorf("session: insert record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}

// Records returns the records of session id in insertion order.
func (s *SQLiteStore) Records(ctx context.Context, id string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_json FROM records WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("session: query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("session: scan record: %w", err)
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("session: unmarshal record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate records: %w", err)
	}
	return out, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Cleanup removes sessions whose updated_at is older than maxAge from now,
// with their records. It returns the number of deleted sessions.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeFormat)

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE session_id IN
			(SELECT id FROM sessions WHERE updated_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("session: cleanup records: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("session: cleanup sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session: rows affected: %w", err)
	}
	return deleted, nil
}
