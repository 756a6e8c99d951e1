package manager

import (
	"context"
	"fmt"

	"pocketlm/internal/common/fsutil"
	"pocketlm/internal/events"
	"pocketlm/pkg/types"
)

// Load makes name the single loaded model.
//
// The model must be downloaded with its artifact present on disk. Loading the
// model that is already loaded is a no-op. A different loaded model is
// released before the new task is created, so two tasks never coexist. If the
// engine fails the manager ends up unloaded.
func (m *Manager) Load(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	switch {
	case m.cur.state == StateGenerating:
		st := m.cur.state
		m.mu.Unlock()
		return m.busy("load", st)
	case m.cur.state == StateLoaded && m.cur.model == name:
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	path, err := m.artifactPath(ctx, name)
	if err != nil {
		return err
	}

	// Move to loading and take the old task out in one step; a generation
	// that started meanwhile wins.
	m.mu.Lock()
	if m.cur.state == StateGenerating {
		st := m.cur.state
		m.mu.Unlock()
		return m.busy("load", st)
	}
	old := m.cur
	m.cur = lifecycle{state: StateLoading, model: name}
	m.mu.Unlock()

	if old.task != nil {
		m.release(old)
	}

	m.publisher.Publish(events.Event{Name: "load_start", Model: name, Fields: map[string]any{"path": path}})
	start := m.now()
	task, err := m.engine.CreateTask(ctx, path, m.opts)
	dur := m.now().Sub(start)
	if err != nil {
		m.mu.Lock()
		m.cur = lifecycle{state: StateUnloaded}
		m.lastErr = err.Error()
		m.mu.Unlock()
		loadDuration.WithLabelValues("error").Observe(dur.Seconds())
		m.publisher.Publish(events.Event{Name: "load_error", Model: name, Fields: map[string]any{"error": err.Error()}})
		m.log.Warn().Err(err).Str("model", name).Msg("load failed")
		if IsDependencyUnavailable(err) {
			return err
		}
		return &loadError{name: name, err: err}
	}

	m.mu.Lock()
	m.cur = lifecycle{state: StateLoaded, model: name, task: task}
	m.handle++
	m.loadsTotal++
	m.lastLoad = dur
	m.lastErr = ""
	handle := m.handle
	m.mu.Unlock()
	loadedGauge.Set(1)
	loadDuration.WithLabelValues("success").Observe(dur.Seconds())
	m.publisher.Publish(events.Event{Name: "load_done", Model: name, Fields: map[string]any{"dur_ms": dur.Milliseconds(), "handle": handle}})
	m.log.Info().Str("model", name).Dur("took", dur).Uint64("handle", handle).Msg("model loaded")
	return nil
}

// artifactPath resolves the local file of a downloaded model.
func (m *Manager) artifactPath(ctx context.Context, name string) (string, error) {
	rec, err := m.store.GetModelStatus(ctx, name)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", name, err)
	}
	if rec == nil || rec.Status != types.StatusDownloaded || rec.LocalPath == "" || !fsutil.FileExists(rec.LocalPath) {
		return "", notDownloadedError{name: name}
	}
	return rec.LocalPath, nil
}

// release closes a task that has already been detached from m.cur. A close
// failure is logged; the handle is gone either way.
func (m *Manager) release(old lifecycle) {
	if err := old.task.Close(); err != nil {
		m.log.Warn().Err(err).Str("model", old.model).Msg("release task")
	}
	loadedGauge.Set(0)
	m.publisher.Publish(events.Event{Name: "unload_done", Model: old.model})
}
