package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps segments and artifacts in an embedded SQLite database.
// Append order within a segment is preserved by the rowid.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite allows a single writer; one connection avoids
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS segments (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			segment TEXT NOT NULL,
			line    BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_segments_segment ON segments(segment);
		CREATE TABLE IF NOT EXISTS artifacts (
			name TEXT PRIMARY KEY,
			body BLOB NOT NULL
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(segment string, line []byte) error {
	if _, err := s.db.Exec(`INSERT INTO segments (segment, line) VALUES (?, ?)`, segment, line); err != nil {
		return fmt.Errorf("append segment line: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Read(segment string) ([][]byte, error) {
	rows, err := s.db.Query(`SELECT line FROM segments WHERE segment = ? ORDER BY id`, segment)
	if err != nil {
		return nil, fmt.Errorf("read segment: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var lines [][]byte
	for rows.Next() {
		var line []byte
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan segment line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segment: %w", err)
	}
	return lines, nil
}

func (s *SQLiteStore) WriteArtifact(name string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO artifacts (name, body) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body
	`, name, data)
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadArtifact(name string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRow(`SELECT body FROM artifacts WHERE name = ?`, name).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return body, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
