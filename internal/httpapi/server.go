package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pocketlm/internal/manager"
	"pocketlm/pkg/types"
)

// Downloads is the slice of the download manager used by the API.
type Downloads interface {
	Models(ctx context.Context) ([]types.ModelState, error)
	Start(ctx context.Context, name string, onProgress func(types.Progress)) (string, bool, error)
	Cancel(name string) bool
	Progress(name string) (types.Progress, bool)
	Snapshot() []types.Progress
	Exclusive(name string, fn func() error) error
}

// Lifecycle is the slice of the model lifecycle manager used by the API.
type Lifecycle interface {
	Load(ctx context.Context, name string) error
	Unload(ctx context.Context) error
	Delete(ctx context.Context, name string) error
	Snapshot() manager.Snapshot
	SanityCheck() manager.SanityReport
	Ready() bool
}

// Sessions is the slice of the session cache used by the API.
type Sessions interface {
	Sessions(ctx context.Context) ([]types.Session, error)
	Session(id string) (types.Session, bool)
	Active() (types.Session, bool)
	CreateSession(ctx context.Context) (types.Session, error)
	SetActiveSession(ctx context.Context, id string) error
	RenameSession(ctx context.Context, id, name string) error
	DeleteSession(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]types.Message, error)
}

// Chat sends prompts to the loaded model.
type Chat interface {
	Send(ctx context.Context, sessionID, prompt string) (types.Message, types.Message, error)
}

// Services bundles everything the HTTP layer drives.
type Services struct {
	Downloads Downloads
	Lifecycle Lifecycle
	Sessions  Sessions
	Chat      Chat
	// StartTime is used for the uptime in /status; zero means NewMux time.
	StartTime time.Time
}

type api struct {
	Services
}

func NewMux(svc Services) http.Handler {
	if svc.StartTime.IsZero() {
		svc.StartTime = time.Now()
	}
	a := &api{Services: svc}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", a.listModels)
	r.Route("/models/{name}", func(r chi.Router) {
		r.Get("/progress", a.progress)
		r.Post("/download", a.startDownload)
		r.Delete("/download", a.cancelDownload)
		r.Post("/load", a.load)
		r.Delete("/", a.deleteModel)
	})
	r.Post("/unload", a.unload)
	r.Get("/status", a.status)
	r.Get("/sanity", a.sanity)

	r.Get("/sessions", a.listSessions)
	r.Post("/sessions", a.createSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", a.getSession)
		r.Patch("/", a.renameSession)
		r.Delete("/", a.deleteSession)
		r.Post("/activate", a.activateSession)
		r.Get("/messages", a.history)
		r.Post("/messages", a.send)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Lifecycle.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no model loaded"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// modelName returns the decoded {name} parameter. Names containing '/' must
// be sent percent-encoded (%2F); chi matches on the raw path.
func modelName(r *http.Request) (string, error) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || strings.TrimSpace(name) == "" {
		return "", statusError{code: http.StatusBadRequest, msg: "invalid model name"}
	}
	return name, nil
}

// decodeJSON enforces the JSON content type and the body size limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return statusError{code: http.StatusUnsupportedMediaType, msg: "Content-Type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Oversized bodies also end up here; keep the size out of the message.
		return statusError{code: http.StatusBadRequest, msg: "invalid JSON body"}
	}
	return nil
}

// fail writes err and logs the outcome.
func fail(w http.ResponseWriter, r *http.Request, msg string, start time.Time, err error) {
	code := writeError(w, err)
	logOutcome(r, msg, code, start, err)
}

// listModels godoc
// @Summary List models
// @Description Catalog models merged with durable status and in-flight progress.
// @Tags models
// @Produce json
// @Success 200 {object} types.ModelsResponse
// @Router /models [get]
func (a *api) listModels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	states, err := a.Downloads.Models(r.Context())
	if err != nil {
		fail(w, r, "models", start, err)
		return
	}
	if states == nil {
		states = []types.ModelState{}
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: states})
}

func (a *api) progress(w http.ResponseWriter, r *http.Request) {
	name, err := modelName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, ok := a.Downloads.Progress(name)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no download in progress for "+name)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// startDownload godoc
// @Summary Download a model
// @Description Starts a background download. Returns 200 when the model is already available.
// @Tags models
// @Produce json
// @Param name path string true "Model name (URL-encoded)"
// @Success 200 {object} types.DownloadResponse
// @Success 202 {object} types.DownloadResponse
// @Failure 404 {object} types.ErrorResponse
// @Failure 409 {object} types.ErrorResponse
// @Router /models/{name}/download [post]
func (a *api) startDownload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name, err := modelName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// Transfers outlive the request; shutdown cancels them.
	path, started, err := a.Downloads.Start(serverBaseCtx, name, nil)
	if err != nil {
		fail(w, r, "download", start, err)
		return
	}
	if !started {
		writeJSON(w, http.StatusOK, types.DownloadResponse{Model: name, Status: types.StatusDownloaded, LocalPath: path})
		logOutcome(r, "download", http.StatusOK, start, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, types.DownloadResponse{Model: name, Status: types.StatusDownloading})
	logOutcome(r, "download", http.StatusAccepted, start, nil)
}

func (a *api) cancelDownload(w http.ResponseWriter, r *http.Request) {
	name, err := modelName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !a.Downloads.Cancel(name) {
		writeJSONError(w, http.StatusNotFound, "no download in progress for "+name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// load godoc
// @Summary Load a model
// @Description Loads a downloaded model, releasing any other loaded model first.
// @Tags lifecycle
// @Produce json
// @Param name path string true "Model name (URL-encoded)"
// @Success 200 {object} types.StatusResponse
// @Failure 409 {object} types.ErrorResponse
// @Failure 429 {object} types.ErrorResponse
// @Router /models/{name}/load [post]
func (a *api) load(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name, err := modelName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if err := a.Lifecycle.Load(ctx, name); err != nil {
		fail(w, r, "load", start, err)
		return
	}
	writeJSON(w, http.StatusOK, a.statusResponse())
	logOutcome(r, "load", http.StatusOK, start, nil)
}

func (a *api) unload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := a.Lifecycle.Unload(r.Context()); err != nil {
		fail(w, r, "unload", start, err)
		return
	}
	writeJSON(w, http.StatusOK, a.statusResponse())
}

func (a *api) deleteModel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name, err := modelName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// holding the download slot keeps a transfer from recreating the row
	err = a.Downloads.Exclusive(name, func() error {
		return a.Lifecycle.Delete(r.Context(), name)
	})
	if err != nil {
		fail(w, r, "delete", start, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	logOutcome(r, "delete", http.StatusNoContent, start, nil)
}

// status godoc
// @Summary Runtime status
// @Tags lifecycle
// @Produce json
// @Success 200 {object} types.StatusResponse
// @Router /status [get]
func (a *api) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.statusResponse())
}

func (a *api) statusResponse() types.StatusResponse {
	snap := a.Lifecycle.Snapshot()
	resp := types.StatusResponse{
		State:            string(snap.State),
		Model:            snap.Model,
		Handle:           snap.Handle,
		LastError:        snap.LastError,
		LoadsTotal:       snap.LoadsTotal,
		LastLoadMs:       snap.LastLoad.Milliseconds(),
		LastGenerationMs: snap.LastGeneration.Milliseconds(),
		Downloads:        a.Downloads.Snapshot(),
		UptimeSeconds:    int64(time.Since(a.StartTime).Seconds()),
	}
	if resp.Downloads == nil {
		resp.Downloads = []types.Progress{}
	}
	if s, ok := a.Sessions.Active(); ok {
		resp.ActiveSession = s.ID
	}
	return resp
}

func (a *api) sanity(w http.ResponseWriter, r *http.Request) {
	rep := a.Lifecycle.SanityCheck()
	code := http.StatusOK
	if !rep.EngineAvailable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// listSessions godoc
// @Summary List sessions
// @Tags sessions
// @Produce json
// @Success 200 {object} types.SessionsResponse
// @Router /sessions [get]
func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	list, err := a.Sessions.Sessions(r.Context())
	if err != nil {
		fail(w, r, "sessions", start, err)
		return
	}
	active, _ := a.Sessions.Active()
	resp := types.SessionsResponse{Sessions: make([]types.SessionResponse, 0, len(list)), Active: active.ID}
	for _, s := range list {
		resp.Sessions = append(resp.Sessions, types.SessionResponse{Session: s, Active: s.ID == active.ID})
	}
	writeJSON(w, http.StatusOK, resp)
}

// createSession godoc
// @Summary Create a session
// @Description Creates an empty session named "New Session" and makes it active.
// @Tags sessions
// @Produce json
// @Success 201 {object} types.SessionResponse
// @Router /sessions [post]
func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s, err := a.Sessions.CreateSession(r.Context())
	if err != nil {
		fail(w, r, "create session", start, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.SessionResponse{Session: s, Active: true, History: []types.Message{}})
	logOutcome(r, "create session", http.StatusCreated, start, nil)
}

// sessionResponse renders id with its hydrated history.
func (a *api) sessionResponse(ctx context.Context, id string) (types.SessionResponse, error) {
	hist, err := a.Sessions.History(ctx, id)
	if err != nil {
		return types.SessionResponse{}, err
	}
	s, ok := a.Sessions.Session(id)
	if !ok {
		return types.SessionResponse{}, statusError{code: http.StatusNotFound, msg: "session not found: " + id}
	}
	active, _ := a.Sessions.Active()
	if hist == nil {
		hist = []types.Message{}
	}
	return types.SessionResponse{Session: s, Active: active.ID == id, History: hist}, nil
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp, err := a.sessionResponse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "session", start, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// renameSession godoc
// @Summary Rename a session
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session id"
// @Param body body types.RenameRequest true "New name"
// @Success 200 {object} types.SessionResponse
// @Failure 400 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /sessions/{id} [patch]
func (a *api) renameSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	var req types.RenameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.Sessions.RenameSession(r.Context(), id, req.Name); err != nil {
		fail(w, r, "rename session", start, err)
		return
	}
	resp, err := a.sessionResponse(r.Context(), id)
	if err != nil {
		fail(w, r, "rename session", start, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) deleteSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := a.Sessions.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, "delete session", start, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) activateSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	if err := a.Sessions.SetActiveSession(r.Context(), id); err != nil {
		fail(w, r, "activate session", start, err)
		return
	}
	resp, err := a.sessionResponse(r.Context(), id)
	if err != nil {
		fail(w, r, "activate session", start, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	hist, err := a.Sessions.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "history", start, err)
		return
	}
	if hist == nil {
		hist = []types.Message{}
	}
	writeJSON(w, http.StatusOK, types.MessagesResponse{Messages: hist})
}

// send godoc
// @Summary Send a prompt
// @Description Appends the prompt to the session, generates a reply with the loaded model and appends it.
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session id"
// @Param body body types.SendRequest true "Prompt"
// @Success 200 {object} types.SendResponse
// @Failure 400 {object} types.ErrorResponse
// @Failure 409 {object} types.ErrorResponse
// @Failure 429 {object} types.ErrorResponse
// @Router /sessions/{id}/messages [post]
func (a *api) send(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	var req types.SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if requestLogLevel(r) >= LevelDebug {
		zlog.Debug().Str("session", id).Str("prompt", req.Prompt).Msg("send start")
	}
	// a recorded prompt is answered even if the client goes away
	user, reply, err := a.Chat.Send(r.Context(), id, req.Prompt)
	if err != nil {
		// Client went away; nobody is listening for the error.
		if r.Context().Err() != nil {
			return
		}
		fail(w, r, "send", start, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SendResponse{User: user, Reply: reply})
	logOutcome(r, "send", http.StatusOK, start, nil)
}
