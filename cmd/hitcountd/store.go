package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryhazerus/hitcount/store"
	redisstore "github.com/ryhazerus/hitcount/store/redis"
)

// backend is an opened store together with its health probe and any
// background maintenance it needs.
type backend struct {
	store  store.Store
	health func(context.Context) error
	sqlite *store.SQLiteStore
}

func openStore(ctx context.Context, cfg config) (*backend, error) {
	switch cfg.Backend {
	case "memory":
		return &backend{store: store.NewMemoryStore()}, nil

	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, sqlite: s}, nil

	case "tiered":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{store: store.NewTieredStore(s, cfg.TieredCacheTTL), sqlite: s}, nil

	case "redis":
		s, err := redisstore.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, health: s.Healthcheck}, nil

	default:
		return nil, fmt.Errorf("STORE_BACKEND: unknown backend %q", cfg.Backend)
	}
}

// purgeLoop periodically deletes expired SQLite rows until ctx is done.
func purgeLoop(ctx context.Context, s *store.SQLiteStore, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				logger.WarnContext(ctx, "purge expired buckets failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "purged expired buckets", slog.Int64("rows", n))
			}
		}
	}
}
