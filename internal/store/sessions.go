package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pocketlm/pkg/types"
)

// ListSessions returns all sessions, most recently created first.
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, createdAt, updatedAt FROM sessions ORDER BY createdAt DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	out := []types.Session{}
	for rows.Next() {
		var (
			sess             types.Session
			created, updated int64
		)
		if err := rows.Scan(&sess.ID, &sess.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt, sess.UpdatedAt = fromUnix(created), fromUnix(updated)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession returns one session or a not-found error.
func (s *Store) GetSession(ctx context.Context, id string) (types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		sess             types.Session
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, createdAt, updatedAt FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Session{}, notFoundError{what: "session", id: id}
	}
	if err != nil {
		return types.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt, sess.UpdatedAt = fromUnix(created), fromUnix(updated)
	return sess, nil
}

// CreateSession inserts a new session. A duplicate id is a constraint error.
func (s *Store) CreateSession(ctx context.Context, id, name string) (types.Session, error) {
	now := s.now()
	sess := types.Session{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	err := s.write(ctx, func(tx *sql.Tx) error {
		var one int
		switch err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one); {
		case err == nil:
			return constraintError{table: "session", id: id}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, name, createdAt, updatedAt) VALUES (?, ?, ?, ?)`,
			id, name, toUnix(now), toUnix(now))
		return mapInsertError(err, "session", id, "")
	})
	if err != nil {
		return types.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// RenameSession updates a session's name and updatedAt.
func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET name = ?, updatedAt = ? WHERE id = ?`, name, toUnix(s.now()), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFoundError{what: "session", id: id}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return nil
}

// DeleteSession removes a session and, by cascade, its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	err := s.write(ctx, func(tx *sql.Tx) error {
		// explicit delete keeps messages consistent even if a connection lost the FK pragma
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE sessionId = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFoundError{what: "session", id: id}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
