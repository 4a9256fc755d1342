// Package archive persists published story exports in SQLite so share links outlive sessions.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/narravox/narravox/backend/internal/service/export"
)

// ErrNotFound is returned for unknown share ids.
var ErrNotFound = errors.New("shared story not found")

const schema = `CREATE TABLE IF NOT EXISTS shared_stories (
	share_id    TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	turn_count  INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	document    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS shared_stories_session ON shared_stories(session_id);`

// Store is a SQLite-backed archive of shared stories.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the archive at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Publish stores doc under a new share id.
func (s *Store) Publish(ctx context.Context, doc export.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc.SessionID == "" {
		return "", fmt.Errorf("session id is required")
	}
	data, err := export.JSON(doc)
	if err != nil {
		return "", err
	}

	shareID := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO shared_stories (share_id, session_id, turn_count, created_at, document) VALUES (?, ?, ?, ?, ?)`,
		shareID, doc.SessionID, doc.TurnCount, s.now().UTC().UnixMilli(), data,
	)
	if err != nil {
		return "", fmt.Errorf("insert shared story: %w", err)
	}
	return shareID, nil
}

// Get loads a published document.
func (s *Store) Get(ctx context.Context, shareID string) (export.Document, error) {
	if err := ctx.Err(); err != nil {
		return export.Document{}, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM shared_stories WHERE share_id = ?`, strings.TrimSpace(shareID),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return export.Document{}, ErrNotFound
	}
	if err != nil {
		return export.Document{}, fmt.Errorf("query shared story: %w", err)
	}
	return export.ParseJSON(data)
}

// Count returns how many stories have been published for a session.
func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shared_stories WHERE session_id = ?`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count shared stories: %w", err)
	}
	return n, nil
}
