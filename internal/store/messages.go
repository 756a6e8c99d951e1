package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pocketlm/pkg/types"
)

// ListMessages returns a session's messages oldest first. Equal timestamps
// keep insertion order. An unknown session yields an empty list.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sessionId, role, content, createdAt, modelName, generationTimeMs
		FROM messages WHERE sessionId = ?
		ORDER BY createdAt ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	out := []types.Message{}
	for rows.Next() {
		var (
			m       types.Message
			role    string
			created int64
			model   sql.NullString
			genMs   sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &created, &model, &genMs); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = types.Role(role)
		m.CreatedAt = fromUnix(created)
		m.ModelName = model.String
		m.GenerationTimeMs = genMs.Int64
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendMessage persists m and bumps the owning session's updatedAt.
// A zero CreatedAt is stamped with the store clock; the stored message is returned.
func (s *Store) AppendMessage(ctx context.Context, m types.Message) (types.Message, error) {
	if !m.Role.Valid() {
		return types.Message{}, fmt.Errorf("append message: invalid role %q", m.Role)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	err := s.write(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, m.SessionID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return foreignKeyError{sessionID: m.SessionID}
		}
		if err != nil {
			return err
		}
		// never before the session's latest message, so createdAt order is
		// append order even when the clock steps back
		var last int64
		err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(createdAt), 0) FROM messages WHERE sessionId = ?`, m.SessionID).Scan(&last)
		if err != nil {
			return err
		}
		if toUnix(m.CreatedAt) < last {
			m.CreatedAt = fromUnix(last)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, sessionId, role, content, createdAt, modelName, generationTimeMs)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, string(m.Role), m.Content, toUnix(m.CreatedAt),
			nullString(m.ModelName), nullInt(m.GenerationTimeMs, m.Role == types.RoleModel))
		if err != nil {
			return mapInsertError(err, "message", m.ID, m.SessionID)
		}
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET updatedAt = ? WHERE id = ?`, toUnix(m.CreatedAt), m.SessionID)
		return err
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

func nullInt(n int64, valid bool) sql.NullInt64 { return sql.NullInt64{Int64: n, Valid: valid} }
