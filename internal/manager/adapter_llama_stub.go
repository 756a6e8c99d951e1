//go:build !llama

package manager

// No-CGO stub compiled when the 'llama' build tag is NOT set, keeping default
// builds and CI CGO-free. The real engine lives in adapter_llama.go.

import "context"

const llamaBuilt = false

const llamaMissing = "llama support not built (missing 'llama' build tag)"

type llamaEngine struct{}

// NewLlamaEngine returns a stub engine that refuses to load models.
func NewLlamaEngine() Engine { return llamaEngine{} }

func (llamaEngine) Available() error { return ErrDependencyUnavailable(llamaMissing) }

func (llamaEngine) CreateTask(ctx context.Context, path string, opts Options) (Task, error) {
	return nil, ErrDependencyUnavailable(llamaMissing)
}
