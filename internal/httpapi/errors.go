package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"pocketlm/internal/chat"
	"pocketlm/internal/download"
	"pocketlm/internal/manager"
	"pocketlm/internal/sessions"
	"pocketlm/internal/store"
	"pocketlm/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusError is an HTTPError raised by the handlers themselves.
type statusError struct {
	code int
	msg  string
}

func (e statusError) Error() string   { return e.msg }
func (e statusError) StatusCode() int { return e.code }

// statusFor maps a service error to its HTTP status code.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case store.IsNotFound(err), download.IsUnknownModel(err), manager.IsModelNotFound(err):
		return http.StatusNotFound
	case manager.IsNotDownloaded(err), manager.IsNotLoaded(err), download.IsAlreadyInProgress(err),
		store.IsConstraint(err), store.IsForeignKey(err):
		return http.StatusConflict
	case manager.IsBusy(err):
		return http.StatusTooManyRequests
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case chat.IsEmptyPrompt(err), sessions.IsInvalidName(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err, counts backpressure and writes the JSON error payload.
func writeError(w http.ResponseWriter, err error) int {
	code := statusFor(err)
	if code == http.StatusTooManyRequests {
		IncrementBackpressure("busy")
	}
	writeJSONError(w, code, err.Error())
	return code
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}
