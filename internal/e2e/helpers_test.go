package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pocketlm/internal/catalog"
	"pocketlm/internal/chat"
	"pocketlm/internal/download"
	"pocketlm/internal/httpapi"
	"pocketlm/internal/manager"
	"pocketlm/internal/sessions"
	"pocketlm/internal/store"
	"pocketlm/pkg/types"
)

// chunkTransport writes payload in the given cumulative steps, reporting each.
type chunkTransport struct {
	payload []byte
	steps   []int
}

func (c chunkTransport) Fetch(ctx context.Context, url, partPath string, onBytes func(written, expected int64)) (int64, error) {
	f, err := os.Create(partPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	prev := 0
	for _, n := range c.steps {
		if err := ctx.Err(); err != nil {
			return int64(prev), err
		}
		if _, err := f.Write(c.payload[prev:n]); err != nil {
			return int64(prev), err
		}
		prev = n
		onBytes(int64(n), int64(len(c.payload)))
	}
	return int64(prev), f.Sync()
}

// replyEngine answers with a fixed sentence.
type replyEngine struct{}

func (replyEngine) Available() error { return nil }

func (replyEngine) CreateTask(ctx context.Context, path string, opts manager.Options) (manager.Task, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return replyTask{}, nil
}

type replyTask struct{}

func (replyTask) Generate(ctx context.Context, prompt string) (string, error) {
	return "Waves fold into light, salt remembers the moon.", nil
}

func (replyTask) Close() error { return nil }

// stack is the full service graph over one data directory.
type stack struct {
	store     *store.Store
	downloads *download.Manager
	models    *manager.Manager
	sessions  *sessions.Cache
	server    *httptest.Server
}

func openStack(t *testing.T, dir string, transport download.Transport) *stack {
	t.Helper()
	ctx := context.Background()
	cat, err := catalog.New([]types.Model{{Name: "m1", Backend: "llama", URL: "http://models.invalid/m1.gguf", Extension: ".gguf", SizeBytes: 100}})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	st, err := store.Open(ctx, filepath.Join(dir, "pocketlm.db"), store.Options{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := st.ResetInterrupted(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	dl, err := download.New(download.Config{Catalog: cat, Store: st, Transport: transport, ModelsDir: filepath.Join(dir, "models"), ProgressInterval: -1})
	if err != nil {
		t.Fatalf("downloads: %v", err)
	}
	mgr, err := manager.NewWithConfig(manager.ManagerConfig{Store: st, Engine: replyEngine{}})
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
	srv := httptest.NewServer(httpapi.NewMux(httpapi.Services{Downloads: dl, Lifecycle: mgr, Sessions: cache, Chat: svc}))
	s := &stack{store: st, downloads: dl, models: mgr, sessions: cache, server: srv}
	t.Cleanup(s.close)
	return s
}

// close is idempotent so tests can restart a stack before cleanup runs.
func (s *stack) close() {
	if s.server == nil {
		return
	}
	s.server.Close()
	s.downloads.Wait()
	_ = s.models.Close(context.Background())
	_ = s.store.Close()
	s.server = nil
}

// call performs a JSON request and decodes the response into out when non-nil.
func (s *stack) call(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.server.URL+path, rd)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.server.Client().Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && resp.StatusCode < 300 && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, data)
		}
	}
	return resp.StatusCode
}
