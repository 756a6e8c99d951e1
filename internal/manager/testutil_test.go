package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pocketlm/internal/events"
	"pocketlm/internal/store"
	"pocketlm/pkg/types"
)

// memStore is an in-memory ModelStore.
type memStore struct {
	mu   sync.Mutex
	recs map[string]store.ModelRecord
}

func newMemStore() *memStore { return &memStore{recs: map[string]store.ModelRecord{}} }

func (s *memStore) GetModelStatus(ctx context.Context, name string) (*store.ModelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[name]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *memStore) DeleteModelStatus(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recs[name]
	delete(s.recs, name)
	return ok, nil
}

func (s *memStore) set(name string, st types.ModelStatus, path string) {
	s.mu.Lock()
	s.recs[name] = store.ModelRecord{Name: name, Status: st, LocalPath: path}
	s.mu.Unlock()
}

// fakeEngine counts live tasks so tests can assert the single-handle invariant.
type fakeEngine struct {
	mu       sync.Mutex
	live     int
	maxLive  int
	created  []string
	closed   []string
	startErr error
	genErr   error
	closeErr error
	reply    string
	// gate, when set, blocks Generate until closed
	gate    chan struct{}
	entered chan struct{}
	opts    Options
}

func (f *fakeEngine) Available() error { return nil }

func (f *fakeEngine) CreateTask(ctx context.Context, path string, opts Options) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	f.created = append(f.created, path)
	f.opts = opts
	return &fakeTask{f: f, path: path}, nil
}

type fakeTask struct {
	f    *fakeEngine
	path string
}

func (t *fakeTask) Generate(ctx context.Context, prompt string) (string, error) {
	if t.f.entered != nil {
		t.f.entered <- struct{}{}
	}
	if t.f.gate != nil {
		<-t.f.gate
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t.f.genErr != nil {
		return "", t.f.genErr
	}
	if t.f.reply != "" {
		return t.f.reply, nil
	}
	return "echo: " + prompt, nil
}

func (t *fakeTask) Close() error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.f.live--
	t.f.closed = append(t.f.closed, t.path)
	return t.f.closeErr
}

func (f *fakeEngine) stats() (live, maxLive int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, f.maxLive
}

// createModelFile writes a small artifact and returns its path.
func createModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("GGUF"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	return p
}

// newTestManager registers the given models as downloaded and returns a manager over them.
func newTestManager(t *testing.T, eng *fakeEngine, names ...string) (*Manager, *memStore, *events.MemoryPublisher) {
	t.Helper()
	st := newMemStore()
	dir := t.TempDir()
	for _, n := range names {
		st.set(n, types.StatusDownloaded, createModelFile(t, dir, n+".gguf"))
	}
	pub := events.NewMemoryPublisher()
	m, err := NewWithConfig(ManagerConfig{Store: st, Engine: eng, Publisher: pub})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	return m, st, pub
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

var errBoom = errors.New("boom")
