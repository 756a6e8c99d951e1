package manager

import "context"

// Engine abstracts the on-device inference runtime used by the Manager.
// Concrete implementations (e.g., llama.cpp) should satisfy this interface.
type Engine interface {
	// Available reports whether the runtime can be used in this build/host.
	Available() error
	// CreateTask loads the model artifact at path and returns a ready handle.
	CreateTask(ctx context.Context, path string, opts Options) (Task, error)
}

// Task is a loaded model. It is owned exclusively by the Manager.
type Task interface {
	// Generate runs one prompt to completion and returns the full reply.
	Generate(ctx context.Context, prompt string) (string, error)
	// Close releases the native resources of the task.
	Close() error
}

// Options captures generation parameters fixed at load time.
type Options struct {
	MaxTokens   int
	TopK        int
	Temperature float64
	RandomSeed  int
	// llama.cpp specific
	ContextSize int
	Threads     int
}

// Defaults used when Options fields are unset.
const (
	DefaultMaxTokens   = 512
	DefaultTopK        = 40
	DefaultTemperature = 0.8
)

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	return o
}
