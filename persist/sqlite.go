// ABOUTME: SQLite persistence backend keeping every saved revision of each named design.
// ABOUTME: Settings and agents are stored as separate JSON columns and loaded from the newest revision.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Revision describes one saved snapshot row.
type Revision struct {
	ID      string
	Name    string
	Agents  int
	SavedAt time.Time
}

// SQLiteStore is a Backend on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			revision TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			settings TEXT NOT NULL,
			agents TEXT NOT NULL,
			agent_count INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS snapshots_by_name ON snapshots (name, revision);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts a new revision.
func (s *SQLiteStore) Save(ctx context.Context, name string, snap *Snapshot) (string, error) {
	settings, agents, err := EncodePayloads(snap)
	if err != nil {
		return "", err
	}
	rev := NewRevision()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (revision, name, settings, agents, agent_count, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rev, name, string(settings), string(agents), len(snap.Agents),
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	return fmt.Sprintf("saved %s revision %s", name, rev), nil
}

// Load returns the newest revision of name.
func (s *SQLiteStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	var settings, agents string
	err := s.db.QueryRowContext(ctx,
		`SELECT settings, agents FROM snapshots WHERE name = ? ORDER BY revision DESC LIMIT 1`,
		name,
	).Scan(&settings, &agents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNothingToLoad
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return DecodePayloads([]byte(settings), []byte(agents))
}

// History lists the revisions of name, newest first.
func (s *SQLiteStore) History(ctx context.Context, name string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT revision, name, agent_count, saved_at FROM snapshots WHERE name = ? ORDER BY revision DESC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Revision
	for rows.Next() {
		var r Revision
		var savedAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.Agents, &savedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		r.SavedAt, _ = time.Parse(time.RFC3339, savedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
