package manager

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"pocketlm/internal/events"
	"pocketlm/internal/store"
)

// ModelStore is the slice of the persistent store the manager reads and clears.
type ModelStore interface {
	GetModelStatus(ctx context.Context, name string) (*store.ModelRecord, error)
	DeleteModelStatus(ctx context.Context, name string) (bool, error)
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Store  ModelStore
	Engine Engine // defaults to the llama engine
	// Inference options applied to every loaded task.
	Options   Options
	Logger    *zerolog.Logger
	Publisher events.Publisher
	Now       func() time.Time
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("manager: store is required")
	}
	m := &Manager{
		store:     cfg.Store,
		engine:    cfg.Engine,
		opts:      cfg.Options.withDefaults(),
		log:       zerolog.Nop(),
		publisher: events.OrNoop(cfg.Publisher),
		now:       cfg.Now,
		cur:       lifecycle{state: StateUnloaded},
	}
	if m.engine == nil {
		m.engine = NewLlamaEngine()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	}
	return m, nil
}
