package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"pocketlm/internal/catalog"
	"pocketlm/internal/chat"
	"pocketlm/internal/config"
	"pocketlm/internal/download"
	"pocketlm/internal/events"
	"pocketlm/internal/manager"
	"pocketlm/internal/sessions"
	"pocketlm/internal/store"
)

// app is the wired set of services behind every command.
type app struct {
	cfg       config.Config
	log       zerolog.Logger
	store     *store.Store
	catalog   *catalog.Catalog
	downloads *download.Manager
	models    *manager.Manager
	sessions  *sessions.Cache
	chat      *chat.Service
}

// openApp opens the store and wires the services. Failing to open the store
// is fatal for every command.
func openApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.DBPath, store.Options{Logger: &log})
	if err != nil {
		return nil, err
	}
	pub := events.LogPublisher{Logger: log.With().Str("component", "events").Logger()}

	a := &app{cfg: cfg, log: log, store: st, catalog: cat}
	if a.downloads, err = download.New(download.Config{
		Catalog:          cat,
		Store:            st,
		ModelsDir:        cfg.ModelsDir,
		ProgressInterval: cfg.ProgressInterval(),
		Logger:           &log,
		Publisher:        pub,
	}); err != nil {
		st.Close()
		return nil, err
	}
	inf := cfg.Inference
	if a.models, err = manager.NewWithConfig(manager.ManagerConfig{
		Store: st,
		Options: manager.Options{
			MaxTokens:   inf.MaxTokens,
			TopK:        inf.TopK,
			Temperature: inf.Temperature,
			RandomSeed:  inf.RandomSeed,
			ContextSize: inf.ContextSize,
			Threads:     inf.Threads,
		},
		Logger:    &log,
		Publisher: pub,
	}); err != nil {
		st.Close()
		return nil, err
	}
	if a.sessions, err = sessions.New(sessions.Config{Store: st, Logger: &log, Publisher: pub}); err != nil {
		st.Close()
		return nil, err
	}
	if a.chat, err = chat.New(chat.Config{Generator: a.models, Sessions: a.sessions, Logger: &log, Publisher: pub}); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// loadCatalog returns the configured catalog plus any preinstalled files.
func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		return nil, err
	}
	if cfg.PreinstalledDir == "" {
		return cat, nil
	}
	local, err := catalog.ScanDir(cfg.PreinstalledDir)
	if err != nil {
		return nil, fmt.Errorf("scan preinstalled models: %w", err)
	}
	return cat.With(local)
}

// close waits for background transfers, unloads the model and closes the store.
func (a *app) close(ctx context.Context) {
	a.downloads.Wait()
	if err := a.models.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("unload on shutdown")
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close store")
	}
}
