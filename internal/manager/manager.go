package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pocketlm/internal/events"
)

// Manager owns the single inference handle. At most one task exists at any
// time and a generation never overlaps a load, unload or another generation.
type Manager struct {
	// opMu queues load/unload/delete behind each other
	opMu sync.Mutex
	// mu guards every field below it
	mu         sync.Mutex
	cur        lifecycle
	handle     uint64
	lastErr    string
	loadsTotal uint64
	lastLoad   time.Duration
	lastGen    time.Duration

	store     ModelStore
	engine    Engine
	opts      Options
	log       zerolog.Logger
	publisher events.Publisher
	now       func() time.Time
}

// New constructs a Manager over store with the given engine and default options.
func New(store ModelStore, engine Engine) (*Manager, error) {
	return NewWithConfig(ManagerConfig{Store: store, Engine: engine})
}

// Ready reports whether a model is loaded and able to take prompts.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.state == StateLoaded || m.cur.state == StateGenerating
}

// Loaded returns the name of the loaded model, if any.
func (m *Manager) Loaded() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur.task == nil {
		return "", false
	}
	return m.cur.model, true
}

// Options returns the inference options applied to loaded tasks.
func (m *Manager) Options() Options { return m.opts }
