package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Turn is a reserved generation slot. While a Turn is open the manager
// reports generating, so loads, unloads, deletes and other generations are
// rejected as busy. Every Turn must end with Generate or Release.
type Turn struct {
	m     *Manager
	task  Task
	model string
	once  sync.Once
}

var errTurnUsed = errors.New("generation turn already used")

// Reserve claims the single generation slot without running anything yet.
// It fails with ErrNotLoaded when no model is loaded and with a busy error
// during a load or another generation.
func (m *Manager) Reserve() (*Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.cur.state {
	case StateUnloaded:
		return nil, ErrNotLoaded
	case StateLoading, StateGenerating:
		return nil, m.busy("generate", m.cur.state)
	}
	m.cur.state = StateGenerating
	return &Turn{m: m, task: m.cur.task, model: m.cur.model}, nil
}

// Model is the name of the model the turn will run on.
func (t *Turn) Model() string { return t.model }

// Release gives the slot back without generating. It is a no-op after
// Generate or a previous Release.
func (t *Turn) Release() {
	t.once.Do(func() {
		t.m.mu.Lock()
		t.m.cur.state = StateLoaded
		t.m.mu.Unlock()
	})
}

// Generate runs prompt on the reserved task and frees the slot. Generation
// is not cancellable: ctx only carries values to the engine. An engine
// failure is returned as a generation error and the model stays loaded.
func (t *Turn) Generate(ctx context.Context, prompt string) (Reply, error) {
	used := true
	t.once.Do(func() { used = false })
	if used {
		return Reply{}, errTurnUsed
	}
	m := t.m

	start := m.now()
	text, err := t.task.Generate(context.WithoutCancel(ctx), prompt)
	dur := m.now().Sub(start)

	m.mu.Lock()
	m.cur.state = StateLoaded
	m.lastGen = dur
	if err != nil {
		m.lastErr = err.Error()
	}
	m.mu.Unlock()

	if err != nil {
		generationDuration.WithLabelValues("error").Observe(dur.Seconds())
		m.log.Warn().Err(err).Str("model", t.model).Msg("generation failed")
		return Reply{}, &generationError{name: t.model, err: err}
	}
	generationDuration.WithLabelValues("success").Observe(dur.Seconds())
	m.log.Debug().Str("model", t.model).Dur("took", dur).Int("chars", len(text)).Msg("generation done")
	return Reply{Text: strings.TrimSpace(text), Model: t.model, Duration: dur}, nil
}

// Generate runs prompt on the loaded model.
//
// Only one generation runs at a time: a second caller, or a caller arriving
// during a load, gets a busy error instead of waiting.
func (m *Manager) Generate(ctx context.Context, prompt string) (Reply, error) {
	turn, err := m.Reserve()
	if err != nil {
		return Reply{}, err
	}
	return turn.Generate(ctx, prompt)
}
