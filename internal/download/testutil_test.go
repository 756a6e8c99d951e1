package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pocketlm/internal/catalog"
	"pocketlm/internal/store"
	"pocketlm/pkg/types"
)

// funcTransport adapts a function to Transport.
type funcTransport func(ctx context.Context, url, part string, onBytes func(int64, int64)) (int64, error)

func (f funcTransport) Fetch(ctx context.Context, url, part string, onBytes func(int64, int64)) (int64, error) {
	return f(ctx, url, part, onBytes)
}

// progressLog collects samples delivered to a progress callback.
type progressLog struct {
	mu      sync.Mutex
	samples []types.Progress
}

func (l *progressLog) add(p types.Progress) {
	l.mu.Lock()
	l.samples = append(l.samples, p)
	l.mu.Unlock()
}

func (l *progressLog) all() []types.Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Progress(nil), l.samples...)
}

func payload(n int) []byte {
	return bytes.Repeat([]byte("pocketlm"), n/8+1)[:n]
}

// artifactServer serves content at /tiny.gguf with Range support and records Range headers.
func artifactServer(t *testing.T, content []byte) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu     sync.Mutex
		ranges []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Range"))
		mu.Unlock()
		http.ServeContent(w, r, "tiny.gguf", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)
	return srv, &ranges
}

type fixture struct {
	store   *store.Store
	catalog *catalog.Catalog
	dir     string
}

func newFixture(t *testing.T, models ...types.Model) fixture {
	t.Helper()
	tmp := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(tmp, "pocketlm.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	cat, err := catalog.New(models)
	require.NoError(t, err)
	return fixture{store: st, catalog: cat, dir: filepath.Join(tmp, "models")}
}

func (f fixture) manager(t *testing.T, tr Transport) *Manager {
	t.Helper()
	m, err := New(Config{
		Catalog:          f.catalog,
		Store:            f.store,
		Transport:        tr,
		ModelsDir:        f.dir,
		ProgressInterval: -1,
	})
	require.NoError(t, err)
	return m
}

func (f fixture) status(t *testing.T, name string) types.ModelStatus {
	t.Helper()
	rec, err := f.store.GetModelStatus(context.Background(), name)
	require.NoError(t, err)
	if rec == nil {
		return types.StatusNotDownloaded
	}
	return rec.Status
}
