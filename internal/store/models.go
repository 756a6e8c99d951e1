package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pocketlm/pkg/types"
)

// ModelRecord is the persisted download status of one model.
type ModelRecord struct {
	Name      string
	Status    types.ModelStatus
	LocalPath string
}

// GetModelStatus returns the record for name, or nil when none exists.
func (s *Store) GetModelStatus(ctx context.Context, name string) (*ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		rec    ModelRecord
		status string
		path   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT modelName, status, localPath FROM model_status WHERE modelName = ?`, name).
		Scan(&rec.Name, &status, &path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get model status: %w", err)
	}
	rec.Status = types.ModelStatus(status)
	rec.LocalPath = path.String
	return &rec, nil
}

// SetModelStatus upserts the status row for name.
func (s *Store) SetModelStatus(ctx context.Context, name string, status types.ModelStatus, localPath string) error {
	if !status.Valid() {
		return fmt.Errorf("set model status: invalid status %q", status)
	}
	err := s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO model_status (modelName, status, localPath) VALUES (?, ?, ?)
			ON CONFLICT(modelName) DO UPDATE SET status = excluded.status, localPath = excluded.localPath`,
			name, string(status), nullString(localPath))
		return err
	})
	if err != nil {
		return fmt.Errorf("set model status: %w", err)
	}
	return nil
}

// ListModelStatuses returns every status row ordered by name.
func (s *Store) ListModelStatuses(ctx context.Context) ([]ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT modelName, status, localPath FROM model_status ORDER BY modelName`)
	if err != nil {
		return nil, fmt.Errorf("list model statuses: %w", err)
	}
	defer rows.Close()
	var out []ModelRecord
	for rows.Next() {
		var (
			rec    ModelRecord
			status string
			path   sql.NullString
		)
		if err := rows.Scan(&rec.Name, &status, &path); err != nil {
			return nil, fmt.Errorf("scan model status: %w", err)
		}
		rec.Status = types.ModelStatus(status)
		rec.LocalPath = path.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteModelStatus removes the row for name and reports whether one existed.
func (s *Store) DeleteModelStatus(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM model_status WHERE modelName = ?`, name)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete model status: %w", err)
	}
	return deleted, nil
}

// ResetInterrupted moves rows left in downloading (by a crash or kill) back to
// not_downloaded and returns how many were reset.
func (s *Store) ResetInterrupted(ctx context.Context) (int, error) {
	var n int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE model_status SET status = ? WHERE status = ?`,
			string(types.StatusNotDownloaded), string(types.StatusDownloading))
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset interrupted downloads: %w", err)
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("reset interrupted downloads")
	}
	return int(n), nil
}
