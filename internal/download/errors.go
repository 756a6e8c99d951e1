package download

import (
	"errors"
	"fmt"
)

type unknownModelError struct{ name string }

func (e unknownModelError) Error() string { return "unknown model: " + e.name }

// ErrUnknownModel constructs an unknown-model error.
func ErrUnknownModel(name string) error { return unknownModelError{name: name} }

// IsUnknownModel reports whether err names a model absent from the catalog.
func IsUnknownModel(err error) bool {
	var e unknownModelError
	return errors.As(err, &e)
}

// alreadyInProgressError rejects a second concurrent download of the same model.
type alreadyInProgressError struct{ name string }

func (e alreadyInProgressError) Error() string { return "download already in progress: " + e.name }

// IsAlreadyInProgress reports whether err rejected a duplicate download.
func IsAlreadyInProgress(err error) bool {
	var e alreadyInProgressError
	return errors.As(err, &e)
}

// downloadError wraps a failed or cancelled transfer.
type downloadError struct {
	name      string
	cancelled bool
	err       error
}

func (e *downloadError) Error() string {
	if e.cancelled {
		return fmt.Sprintf("download %s cancelled", e.name)
	}
	return fmt.Sprintf("download %s: %v", e.name, e.err)
}

func (e *downloadError) Unwrap() error { return e.err }

// Cancelled reports whether the transfer was stopped by its caller.
func (e *downloadError) Cancelled() bool { return e.cancelled }

// IsDownloadError reports whether err is a failed or cancelled transfer.
func IsDownloadError(err error) bool {
	var e *downloadError
	return errors.As(err, &e)
}

// IsCancelled reports whether err is a cancelled transfer.
func IsCancelled(err error) bool {
	var e *downloadError
	return errors.As(err, &e) && e.cancelled
}

// statusError is a non-success HTTP response.
type statusError struct {
	url  string
	code int
}

func (e statusError) Error() string { return fmt.Sprintf("GET %s: unexpected status %d", e.url, e.code) }
