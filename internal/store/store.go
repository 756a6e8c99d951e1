// Package store is the durable source of truth for sessions, messages and
// per-model download status, backed by SQLite.
//
// Writes are serialized behind a single writer lock and committed with
// synchronous=FULL before returning; reads run concurrently under WAL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	createdAt INTEGER NOT NULL,
	updatedAt INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	sessionId        TEXT NOT NULL,
	role             TEXT NOT NULL CHECK(role IN ('user', 'model')),
	content          TEXT NOT NULL,
	createdAt        INTEGER NOT NULL,
	modelName        TEXT,
	generationTimeMs INTEGER,
	FOREIGN KEY (sessionId) REFERENCES sessions (id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(sessionId, createdAt);
CREATE TABLE IF NOT EXISTS model_status (
	modelName TEXT PRIMARY KEY,
	status    TEXT NOT NULL,
	localPath TEXT
);
`

// Options tunes Open.
type Options struct {
	Logger *zerolog.Logger
	// Now overrides the clock used for createdAt/updatedAt (tests).
	Now func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	// single writer, many readers
	mu  sync.RWMutex
	log zerolog.Logger
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
// A failure here means no durable storage is available.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s := &Store{db: db, path: path, log: zerolog.Nop(), now: time.Now}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "store").Logger()
	}
	if opts.Now != nil {
		s.now = opts.Now
	}
	s.log.Debug().Str("path", path).Msg("store opened")
	return s, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range []string{
		"foreign_keys(1)",
		"journal_mode(WAL)",
		"busy_timeout(5000)",
		"synchronous(FULL)",
	} {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// write runs fn in a transaction while holding the writer lock.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func toUnix(t time.Time) int64 { return t.UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n) }
