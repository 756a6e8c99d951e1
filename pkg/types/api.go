package types

// ModelsResponse wraps the list returned by GET /models.
type ModelsResponse struct {
	// Catalog models merged with their durable status and in-flight progress.
	Models []ModelState `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not loaded
	Error string `json:"error" example:"model not loaded"`
	// HTTP status code.
	// example: 409
	Code int `json:"code" example:"409"`
}

// DownloadResponse is returned when a download is accepted.
type DownloadResponse struct {
	// example: google/gemma-3n-e2b
	Model string `json:"model" example:"google/gemma-3n-e2b"`
	// example: downloading
	Status ModelStatus `json:"status" example:"downloading"`
	// Local artifact path when the model is already downloaded.
	LocalPath string `json:"local_path,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Lifecycle state: unloaded, loading, loaded or generating.
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Currently loaded (or loading) model, if any.
	// example: google/gemma-3n-e2b
	Model string `json:"model,omitempty" example:"google/gemma-3n-e2b"`
	// Opaque token of the active inference handle; 0 when none.
	// example: 3
	Handle uint64 `json:"handle,omitempty" example:"3"`
	// Last error observed by the lifecycle manager.
	LastError string `json:"last_error,omitempty"`
	// Total number of successful loads.
	// example: 4
	LoadsTotal uint64 `json:"loads_total" example:"4"`
	// Duration of the last successful load in milliseconds.
	// example: 850
	LastLoadMs int64 `json:"last_load_ms" example:"850"`
	// Duration of the last generation in milliseconds.
	// example: 1200
	LastGenerationMs int64 `json:"last_generation_ms" example:"1200"`
	// In-flight downloads.
	Downloads []Progress `json:"downloads"`
	// Active session id.
	ActiveSession string `json:"active_session,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// SessionResponse is a session with its (possibly hydrated) history.
type SessionResponse struct {
	Session
	Active  bool      `json:"active"`
	History []Message `json:"history,omitempty"`
}

// RenameRequest is the PATCH /sessions/{id} payload.
type RenameRequest struct {
	// example: Trip planning
	Name string `json:"name" example:"Trip planning"`
}

// SendRequest is the POST /sessions/{id}/messages payload.
type SendRequest struct {
	// Prompt text sent to the loaded model.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
}

// SendResponse carries both turns appended by a send.
type SendResponse struct {
	User  Message `json:"user"`
	Reply Message `json:"reply"`
}

// SessionsResponse is returned by GET /sessions, most recent first.
type SessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Active   string            `json:"active,omitempty"`
}

// MessagesResponse is a session history, oldest first.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}
