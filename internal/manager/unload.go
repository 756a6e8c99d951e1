package manager

import (
	"context"
	"fmt"
	"time"

	"pocketlm/internal/common/fsutil"
	"pocketlm/internal/events"
)

// Unload releases the loaded task. Unloading when nothing is loaded is a no-op;
// unloading during a generation is rejected as busy.
func (m *Manager) Unload(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.unloadLocked("unload")
}

// unloadLocked requires opMu.
func (m *Manager) unloadLocked(op string) error {
	m.mu.Lock()
	switch m.cur.state {
	case StateUnloaded:
		m.mu.Unlock()
		return nil
	case StateGenerating:
		st := m.cur.state
		m.mu.Unlock()
		return m.busy(op, st)
	}
	old := m.cur
	m.cur = lifecycle{state: StateUnloaded}
	m.mu.Unlock()

	m.release(old)
	m.log.Info().Str("model", old.model).Msg("model unloaded")
	return nil
}

// Delete removes a model's artifact and status row, unloading it first if it
// is the loaded model. An already missing file is not an error.
func (m *Manager) Delete(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if loaded, ok := m.Loaded(); ok && loaded == name {
		if err := m.unloadLocked("delete"); err != nil {
			return err
		}
	}
	rec, err := m.store.GetModelStatus(ctx, name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if rec == nil {
		return ErrModelNotFound(name)
	}
	if rec.LocalPath != "" {
		if err := fsutil.RemoveIfExists(rec.LocalPath); err != nil {
			return fmt.Errorf("delete %s: remove artifact: %w", name, err)
		}
		if err := fsutil.RemoveIfExists(fsutil.PartPath(rec.LocalPath)); err != nil {
			return fmt.Errorf("delete %s: remove partial artifact: %w", name, err)
		}
	}
	if _, err := m.store.DeleteModelStatus(ctx, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	m.publisher.Publish(events.Event{Name: "model_deleted", Model: name})
	m.log.Info().Str("model", name).Msg("model deleted")
	return nil
}

// Close unloads for shutdown, waiting for an in-flight generation to finish
// until ctx is done.
func (m *Manager) Close(ctx context.Context) error {
	for {
		err := m.Unload(ctx)
		if !IsBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
