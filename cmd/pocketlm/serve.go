package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pocketlm/internal/httpapi"
)

type serveOptions struct {
	addr         string
	cors         bool
	corsOrigins  string
	maxBodyBytes int64
	shutdown     time.Duration
}

func buildServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Example: "  pocketlm serve --addr 127.0.0.1:8080\n" +
			"  pocketlm serve --config ~/.pocketlm/config.yaml --cors --cors-origins http://localhost:5173",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "", "HTTP listen address (default 127.0.0.1:8080)")
	f.BoolVar(&opts.cors, "cors", false, "Enable CORS")
	f.StringVar(&opts.corsOrigins, "cors-origins", "", "Comma-separated allowed origins")
	f.Int64Var(&opts.maxBodyBytes, "max-body-bytes", 1<<20, "Maximum JSON request body size")
	f.DurationVar(&opts.shutdown, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	cfg, err := root.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = opts.addr
	}
	if cmd.Flags().Changed("cors") {
		cfg.CORSEnabled = opts.cors
	}
	if cmd.Flags().Changed("cors-origins") {
		cfg.CORSOrigins = splitCSV(opts.corsOrigins)
	}
	log, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), opts.shutdown)
		defer cancel()
		a.close(closeCtx)
	}()

	if rep := a.models.SanityCheck(); !rep.EngineAvailable {
		return fmt.Errorf("startup: inference engine unavailable: %s", rep.Error)
	}
	if n, err := a.store.ResetInterrupted(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	} else if n > 0 {
		log.Info().Int("count", n).Msg("reset interrupted downloads")
	}
	if err := a.downloads.SyncPreinstalled(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	if err := a.sessions.Initialize(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetBaseContext(gctx)
	httpapi.SetMaxBodyBytes(opts.maxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins,
		[]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		[]string{"Content-Type", "X-Log-Level"})

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewMux(httpapi.Services{
			Downloads: a.downloads,
			Lifecycle: a.models,
			Sessions:  a.sessions,
			Chat:      a.chat,
			StartTime: time.Now(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("data_dir", cfg.DataDir).Msg("pocketlm listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// Graceful shutdown (Ctrl+C / SIGTERM or a listener failure)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), opts.shutdown)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Info().Msg("pocketlm stopped")
	return nil
}
