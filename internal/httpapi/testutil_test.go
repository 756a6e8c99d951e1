package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pocketlm/internal/catalog"
	"pocketlm/internal/chat"
	"pocketlm/internal/download"
	"pocketlm/internal/manager"
	"pocketlm/internal/sessions"
	"pocketlm/internal/store"
	"pocketlm/pkg/types"
)

const tinyName = "org/tiny"

// tinyPath is tinyName as it must appear in a URL path.
const tinyPath = "org%2Ftiny"

// echoEngine answers every prompt with "echo: <prompt>". With a gate set,
// Generate signals entered and blocks until the gate is closed.
type echoEngine struct {
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (e *echoEngine) Available() error { return nil }

func (e *echoEngine) CreateTask(ctx context.Context, path string, opts manager.Options) (manager.Task, error) {
	return &echoTask{e: e}, nil
}

type echoTask struct{ e *echoEngine }

func (t *echoTask) Generate(ctx context.Context, prompt string) (string, error) {
	t.e.mu.Lock()
	gate, entered := t.e.gate, t.e.entered
	t.e.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "echo: " + prompt, nil
}

func (t *echoTask) Close() error { return nil }

type harness struct {
	t         *testing.T
	store     *store.Store
	downloads *download.Manager
	models    *manager.Manager
	sessions  *sessions.Cache
	engine    *echoEngine
	handler   http.Handler
	artifact  []byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	content := bytes.Repeat([]byte("GGUF"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "tiny.gguf", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)

	cat, err := catalog.New([]types.Model{{
		Name: tinyName, Backend: "llama", URL: srv.URL + "/tiny.gguf", Extension: ".gguf", SizeBytes: int64(len(content)),
	}})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	st, err := store.Open(ctx, filepath.Join(dir, "pocketlm.db"), store.Options{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	dl, err := download.New(download.Config{
		Catalog:          cat,
		Store:            st,
		Transport:        &download.HTTPTransport{Client: srv.Client()},
		ModelsDir:        filepath.Join(dir, "models"),
		ProgressInterval: -1,
	})
	if err != nil {
		t.Fatalf("downloads: %v", err)
	}
	t.Cleanup(dl.Wait)

	eng := &echoEngine{}
	mgr, err := manager.NewWithConfig(manager.ManagerConfig{Store: st, Engine: eng})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	cache, err := sessions.New(sessions.Config{Store: st})
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if err := cache.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	svc, err := chat.New(chat.Config{Generator: mgr, Sessions: cache})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	h := NewMux(Services{Downloads: dl, Lifecycle: mgr, Sessions: cache, Chat: svc})
	return &harness{t: t, store: st, downloads: dl, models: mgr, sessions: cache, engine: eng, handler: h, artifact: content}
}

// do performs a request; a non-empty body is sent as JSON.
func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

// expect fails the test unless w carries the given status.
func (h *harness) expect(w *httptest.ResponseRecorder, status int) {
	h.t.Helper()
	if w.Code != status {
		h.t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
}

func (h *harness) decode(w *httptest.ResponseRecorder, v any) {
	h.t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		h.t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
}

// downloadTiny downloads the catalog model through the API and waits for it.
func (h *harness) downloadTiny() {
	h.t.Helper()
	h.expect(h.do(http.MethodPost, "/models/"+tinyPath+"/download", ""), http.StatusAccepted)
	h.downloads.Wait()
}

func (h *harness) activeID() string {
	h.t.Helper()
	s, ok := h.sessions.Active()
	if !ok {
		h.t.Fatal("no active session")
	}
	return s.ID
}
