// Package download fetches model artifacts, tracks ephemeral progress and
// records durable download status in the store.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pocketlm/internal/common/fsutil"
	"pocketlm/internal/events"
	"pocketlm/pkg/types"
)

// Manager runs at most one transfer per model name; different names proceed
// concurrently.
type Manager struct {
	catalog   Catalog
	store     StatusStore
	transport Transport
	dir       string
	interval  time.Duration
	log       zerolog.Logger
	pub       events.Publisher
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]*transfer
	wg       sync.WaitGroup
}

type transfer struct {
	cancel   context.CancelFunc
	progress types.Progress
	// held marks a slot taken by Exclusive; nothing is being transferred
	held bool
}

// New constructs a Manager from cfg, applying defaults.
func New(cfg Config) (*Manager, error) {
	if cfg.Catalog == nil || cfg.Store == nil {
		return nil, errors.New("download: catalog and store are required")
	}
	if cfg.ModelsDir == "" {
		return nil, errors.New("download: models dir is required")
	}
	m := &Manager{
		catalog:   cfg.Catalog,
		store:     cfg.Store,
		transport: cfg.Transport,
		dir:       cfg.ModelsDir,
		interval:  cfg.ProgressInterval,
		log:       zerolog.Nop(),
		pub:       events.OrNoop(cfg.Publisher),
		now:       cfg.Now,
		inflight:  make(map[string]*transfer),
	}
	if m.transport == nil {
		m.transport = &HTTPTransport{}
	}
	if m.interval == 0 {
		m.interval = defaultProgressInterval
	}
	if m.now == nil {
		m.now = time.Now
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "download").Logger()
	}
	return m, nil
}

// Destination returns the local artifact path for a catalog model.
func (m *Manager) Destination(model types.Model) string {
	if model.Preinstalled() {
		return model.Path
	}
	return fsutil.ArtifactPath(m.dir, model.Name, model.Extension)
}

// Download makes the named model available locally and returns its path.
// onProgress may be nil; it is called from the downloading goroutine.
func (m *Manager) Download(ctx context.Context, name string, onProgress func(types.Progress)) (string, error) {
	j, path, err := m.prepare(ctx, name)
	if err != nil || j == nil {
		return path, err
	}
	return m.run(j, onProgress)
}

// Start claims the transfer for name and runs it in the background, bound to
// ctx. Nothing is started when the model is already available locally; its
// path is returned instead. Outcomes of background transfers are recorded in
// the store and logged.
func (m *Manager) Start(ctx context.Context, name string, onProgress func(types.Progress)) (path string, started bool, err error) {
	j, path, err := m.prepare(ctx, name)
	if err != nil || j == nil {
		return path, false, err
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, _ = m.run(j, onProgress)
	}()
	return "", true, nil
}

// Wait blocks until every background transfer has returned.
func (m *Manager) Wait() { m.wg.Wait() }

// job is a claimed transfer.
type job struct {
	ctx    context.Context
	cancel context.CancelFunc
	model  types.Model
	dest   string
}

// prepare resolves name and claims its transfer slot. A nil job with a nil
// error means the artifact is already available at path.
func (m *Manager) prepare(ctx context.Context, name string) (*job, string, error) {
	model, ok := m.catalog.Get(name)
	if !ok {
		return nil, "", ErrUnknownModel(name)
	}
	if model.Preinstalled() {
		path, err := m.registerPreinstalled(ctx, model)
		return nil, path, err
	}
	if path, ok, err := m.completed(ctx, name); err != nil || ok {
		if ok {
			downloadsTotal.WithLabelValues(outcomeCached).Inc()
		}
		return nil, path, err
	}

	tctx, cancel := context.WithCancel(ctx)
	if !m.claim(name, cancel) {
		cancel()
		return nil, "", alreadyInProgressError{name: name}
	}
	abort := func() {
		m.release(name)
		cancel()
	}
	// a transfer may have finished between the first check and the claim
	if path, ok, err := m.completed(ctx, name); err != nil || ok {
		abort()
		return nil, path, err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		abort()
		return nil, "", m.fail(ctx, model, fmt.Errorf("create models dir: %w", err))
	}
	if err := m.store.SetModelStatus(ctx, name, types.StatusDownloading, ""); err != nil {
		abort()
		return nil, "", fmt.Errorf("download %s: %w", name, err)
	}
	return &job{ctx: tctx, cancel: cancel, model: model, dest: m.Destination(model)}, "", nil
}

// run performs a claimed transfer and records its outcome.
func (m *Manager) run(j *job, onProgress func(types.Progress)) (string, error) {
	defer j.cancel()
	defer m.release(j.model.Name)
	name, model, dest := j.model.Name, j.model, j.dest
	downloadsInflight.Inc()
	defer downloadsInflight.Dec()
	m.pub.Publish(events.Event{Name: "download_start", Model: name, Fields: map[string]any{"url": model.URL}})
	m.log.Info().Str("model", name).Str("dest", dest).Msg("download started")

	// outcomes are recorded even when the caller's context is gone
	rctx := context.WithoutCancel(j.ctx)
	part := fsutil.PartPath(dest)
	var startBytes int64
	if fi, err := os.Stat(part); err == nil {
		startBytes = fi.Size()
	}
	smp := newSampler(name, model.SizeBytes, m.interval, m.now, func(p types.Progress) {
		m.setProgress(name, p)
		if onProgress != nil {
			onProgress(p)
		}
	})
	written, err := m.transport.Fetch(j.ctx, model.URL, part, smp.observe)
	downloadedBytes.Add(float64(max(written-startBytes, 0)))
	if err != nil {
		if j.ctx.Err() != nil {
			return "", m.cancelled(model)
		}
		return "", m.fail(rctx, model, err)
	}
	if err := os.Rename(part, dest); err != nil {
		return "", m.fail(rctx, model, fmt.Errorf("finalize artifact: %w", err))
	}
	smp.finish(written)
	if err := m.store.SetModelStatus(rctx, name, types.StatusDownloaded, dest); err != nil {
		return "", m.fail(rctx, model, err)
	}
	downloadsTotal.WithLabelValues(outcomeSuccess).Inc()
	m.pub.Publish(events.Event{Name: "download_done", Model: name, Fields: map[string]any{"bytes": written}})
	m.log.Info().Str("model", name).Int64("bytes", written).Msg("download finished")
	return dest, nil
}

// Cancel stops the in-flight transfer for name and reports whether one existed.
func (m *Manager) Cancel(name string) bool {
	m.mu.Lock()
	t, ok := m.inflight[name]
	m.mu.Unlock()
	if !ok || t.held {
		return false
	}
	t.cancel()
	return true
}

// Exclusive runs fn while holding the transfer slot of name, so no download
// of name can start until fn returns. It fails with AlreadyInProgress,
// without calling fn, when a transfer of name is running.
func (m *Manager) Exclusive(name string, fn func() error) error {
	m.mu.Lock()
	if _, busy := m.inflight[name]; busy {
		m.mu.Unlock()
		return alreadyInProgressError{name: name}
	}
	m.inflight[name] = &transfer{cancel: func() {}, held: true}
	m.mu.Unlock()
	defer m.release(name)
	return fn()
}

// Progress returns the latest sample for an in-flight transfer.
func (m *Manager) Progress(name string) (types.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.inflight[name]
	if !ok || t.held {
		return types.Progress{}, false
	}
	return copyProgress(t.progress), true
}

// Snapshot returns the latest sample of every in-flight transfer, ordered by model name.
func (m *Manager) Snapshot() []types.Progress {
	m.mu.Lock()
	out := make([]types.Progress, 0, len(m.inflight))
	for _, t := range m.inflight {
		if !t.held {
			out = append(out, copyProgress(t.progress))
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Models merges the catalog with durable status and in-flight progress.
// A downloaded model whose file has vanished is reported as not downloaded.
func (m *Manager) Models(ctx context.Context) ([]types.ModelState, error) {
	recs, err := m.store.ListModelStatuses(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(recs))
	for i, r := range recs {
		byName[r.Name] = i
	}
	models := m.catalog.List()
	out := make([]types.ModelState, 0, len(models))
	for _, model := range models {
		st := types.ModelState{Model: model, Status: types.StatusNotDownloaded}
		if i, ok := byName[model.Name]; ok {
			st.Status, st.LocalPath = recs[i].Status, recs[i].LocalPath
		}
		if st.Status == types.StatusDownloaded && !fsutil.FileExists(st.LocalPath) {
			st.Status, st.LocalPath = types.StatusNotDownloaded, ""
		}
		if p, ok := m.Progress(model.Name); ok {
			st.Status = types.StatusDownloading
			st.Progress = &p
		}
		out = append(out, st)
	}
	return out, nil
}

// SyncPreinstalled records every preinstalled catalog model whose file exists
// as downloaded.
func (m *Manager) SyncPreinstalled(ctx context.Context) error {
	var errs []error
	for _, model := range m.catalog.List() {
		if !model.Preinstalled() || !fsutil.FileExists(model.Path) {
			continue
		}
		if _, err := m.registerPreinstalled(ctx, model); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) registerPreinstalled(ctx context.Context, model types.Model) (string, error) {
	if !fsutil.FileExists(model.Path) {
		return "", &downloadError{name: model.Name, err: fmt.Errorf("preinstalled file missing: %s", model.Path)}
	}
	rec, err := m.store.GetModelStatus(ctx, model.Name)
	if err != nil {
		return "", err
	}
	if rec != nil && rec.Status == types.StatusDownloaded && rec.LocalPath == model.Path {
		return model.Path, nil
	}
	if err := m.store.SetModelStatus(ctx, model.Name, types.StatusDownloaded, model.Path); err != nil {
		return "", err
	}
	m.log.Debug().Str("model", model.Name).Str("path", model.Path).Msg("preinstalled model registered")
	return model.Path, nil
}

// completed returns the stored path when name is downloaded and its file exists.
func (m *Manager) completed(ctx context.Context, name string) (string, bool, error) {
	rec, err := m.store.GetModelStatus(ctx, name)
	if err != nil {
		return "", false, err
	}
	if rec == nil || rec.Status != types.StatusDownloaded || !fsutil.FileExists(rec.LocalPath) {
		return "", false, nil
	}
	return rec.LocalPath, true, nil
}

func (m *Manager) claim(name string, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[name]; busy {
		return false
	}
	m.inflight[name] = &transfer{cancel: cancel, progress: types.Progress{Model: name}}
	return true
}

func (m *Manager) release(name string) {
	m.mu.Lock()
	delete(m.inflight, name)
	m.mu.Unlock()
}

func (m *Manager) setProgress(name string, p types.Progress) {
	m.mu.Lock()
	if t, ok := m.inflight[name]; ok {
		t.progress = p
	}
	m.mu.Unlock()
}

// fail records the error status; the partial file stays for the next attempt.
func (m *Manager) fail(ctx context.Context, model types.Model, cause error) error {
	if err := m.store.SetModelStatus(context.WithoutCancel(ctx), model.Name, types.StatusError, ""); err != nil {
		m.log.Error().Err(err).Str("model", model.Name).Msg("record download error")
	}
	downloadsTotal.WithLabelValues(outcomeError).Inc()
	m.pub.Publish(events.Event{Name: "download_error", Model: model.Name, Fields: map[string]any{"error": cause.Error()}})
	m.log.Warn().Err(cause).Str("model", model.Name).Msg("download failed")
	return &downloadError{name: model.Name, err: cause}
}

// cancelled resets the status so the model can be downloaded again; the
// partial file stays so the next attempt resumes.
func (m *Manager) cancelled(model types.Model) error {
	if err := m.store.SetModelStatus(context.Background(), model.Name, types.StatusNotDownloaded, ""); err != nil {
		m.log.Error().Err(err).Str("model", model.Name).Msg("record download cancel")
	}
	downloadsTotal.WithLabelValues(outcomeCancelled).Inc()
	m.pub.Publish(events.Event{Name: "download_cancelled", Model: model.Name})
	m.log.Info().Str("model", model.Name).Msg("download cancelled")
	return &downloadError{name: model.Name, cancelled: true, err: context.Canceled}
}

func copyProgress(p types.Progress) types.Progress {
	if p.SpeedMbps != nil {
		v := *p.SpeedMbps
		p.SpeedMbps = &v
	}
	return p
}
