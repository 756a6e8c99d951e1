package download

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pocketlm/internal/events"
	"pocketlm/internal/store"
	"pocketlm/pkg/types"
)

const defaultProgressInterval = 500 * time.Millisecond

// Catalog resolves model names to reference data.
type Catalog interface {
	Get(name string) (types.Model, bool)
	List() []types.Model
}

// StatusStore is the slice of the persistent store the download manager writes.
type StatusStore interface {
	GetModelStatus(ctx context.Context, name string) (*store.ModelRecord, error)
	SetModelStatus(ctx context.Context, name string, status types.ModelStatus, localPath string) error
	ListModelStatuses(ctx context.Context) ([]store.ModelRecord, error)
}

// Config encapsulates the tunables for New.
type Config struct {
	Catalog   Catalog
	Store     StatusStore
	Transport Transport // defaults to an HTTPTransport
	ModelsDir string
	// Minimum wall time between progress samples. Zero means 500ms; negative
	// samples every chunk.
	ProgressInterval time.Duration
	Logger           *zerolog.Logger
	Publisher        events.Publisher
	Now              func() time.Time
}
