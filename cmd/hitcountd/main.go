// Command hitcountd serves hit counters over HTTP.
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
	_ "time/tzdata"

	"github.com/ryhazerus/hitcount"
	"github.com/ryhazerus/hitcount/internal/api"
)

func main() {
	if err := run(); err != nil {
		slog.Error("hitcountd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.store.Close()

	if b.sqlite != nil {
		go purgeLoop(ctx, b.sqlite, cfg.SQLitePurgeInterval, logger)
	}

	counterOpts, err := cfg.counterOptions(logger)
	if err != nil {
		return err
	}
	tracks, err := cfg.tracks()
	if err != nil {
		return err
	}
	tracker := hitcount.NewTracker(b.store,
		hitcount.WithCounterOptions(counterOpts...),
		hitcount.WithTrackerLogger(logger),
	)
	for _, tr := range tracks {
		if _, err := tracker.Register(tr); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.New(b.store,
			api.WithCounterOptions(counterOpts...),
			api.WithTracker(tracker),
			api.WithHealthcheck(b.health),
		).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("hitcountd listening",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("backend", cfg.Backend),
		slog.Int("tracks", len(tracks)),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
