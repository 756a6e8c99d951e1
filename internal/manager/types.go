package manager

import "time"

// State is the lifecycle state of the single inference handle.
type State string

const (
	StateUnloaded   State = "unloaded"
	StateLoading    State = "loading"
	StateLoaded     State = "loaded"
	StateGenerating State = "generating"
)

// lifecycle is the tagged variant behind the manager. task is non-nil exactly
// in loaded and generating; model is empty exactly in unloaded.
type lifecycle struct {
	state State
	model string
	task  Task
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State State
	Model string
	// Handle increases with every successful load; zero means none yet.
	Handle         uint64
	LastError      string
	LoadsTotal     uint64
	LastLoad       time.Duration
	LastGeneration time.Duration
}

// Reply is the result of one generation.
type Reply struct {
	Text     string
	Model    string
	Duration time.Duration
}
