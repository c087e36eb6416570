// Jobwatch: subscribes to mining job feeds, keeps a short history per source and
// records when sources disagree. Serves the current view over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkiv/jobwatch/internal/api"
	"github.com/arkiv/jobwatch/internal/canon"
	"github.com/arkiv/jobwatch/internal/config"
	"github.com/arkiv/jobwatch/internal/sink"
	"github.com/arkiv/jobwatch/internal/store"
	"github.com/arkiv/jobwatch/internal/supervisor"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("jobwatch stopped", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	registry := canon.Default()
	sources, err := config.LoadSources(cfg.SourcesFile, registry)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []supervisor.Option
	if cfg.DatabaseURL != "" {
		pg, err := sink.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		opts = append(opts, supervisor.WithRecorder(pg))
		logger.Info("divergence sink enabled")
	}

	st := store.New(store.WithRetention(cfg.DiffRetention))
	sup := supervisor.New(sources, st, registry, logger, opts...)
	supDone := make(chan error, 1)
	go func() { supDone <- sup.Run(ctx) }()

	// Use http.Server for graceful shutdown on SIGTERM/SIGINT.
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.NewHandler(st, api.Options{FrontendDir: cfg.FrontendDir, RateLimit: cfg.APIRateLimit, TrustProxy: cfg.TrustProxy}),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "err", err)
			cancel() // trigger shutdown so run can return
		}
	}()
	slog.Info("starting", "addr", cfg.Addr, "sources", len(sources))

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	return <-supDone
}
