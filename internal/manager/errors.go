package manager

import "errors"

// busyError rejects an operation that would interleave with a generation or load.
type busyError struct {
	op    string
	state State
}

func (e busyError) Error() string { return "busy: cannot " + e.op + " while " + string(e.state) }

// ErrBusy constructs a busy error for callers that reject work on the
// manager's behalf.
func ErrBusy(op string, st State) error { return busyError{op: op, state: st} }

// IsBusy reports whether err rejected a concurrent operation (return 429).
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}

// notLoadedError is returned by Generate when no model is loaded.
type notLoadedError struct{}

func (notLoadedError) Error() string { return "no model loaded" }

// ErrNotLoaded is the error Generate returns without a loaded model.
var ErrNotLoaded error = notLoadedError{}

// IsNotLoaded reports whether err indicates that no model is loaded.
func IsNotLoaded(err error) bool {
	var e notLoadedError
	return errors.As(err, &e)
}

// notDownloadedError signals a load of a model without a local artifact.
type notDownloadedError struct{ name string }

func (e notDownloadedError) Error() string { return "model not downloaded: " + e.name }

// IsNotDownloaded reports whether err indicates a missing local artifact.
func IsNotDownloaded(err error) bool {
	var e notDownloadedError
	return errors.As(err, &e)
}

// loadError wraps an engine failure while creating a task.
type loadError struct {
	name string
	err  error
}

func (e *loadError) Error() string { return "load " + e.name + ": " + e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

// IsLoadError reports whether err is a failed model load.
func IsLoadError(err error) bool {
	var e *loadError
	return errors.As(err, &e)
}

// generationError wraps an engine failure during generation.
type generationError struct {
	name string
	err  error
}

func (e *generationError) Error() string { return "generate with " + e.name + ": " + e.err.Error() }
func (e *generationError) Unwrap() error { return e.err }

// IsGenerationError reports whether err is a failed generation.
func IsGenerationError(err error) bool {
	var e *generationError
	return errors.As(err, &e)
}

// modelNotFoundError is returned when a model has no status record at all.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates an unknown model.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing external dependency (e.g., llama.cpp)
// so the HTTP layer can return 503 Service Unavailable instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
