package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ryhazerus/hitcount"
	redisstore "github.com/ryhazerus/hitcount/store/redis"
)

type config struct {
	HTTPAddr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel            slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	Backend             string        `env:"STORE_BACKEND" envDefault:"memory"`
	SQLitePath          string        `env:"SQLITE_PATH" envDefault:"hitcount.db"`
	SQLitePurgeInterval time.Duration `env:"SQLITE_PURGE_INTERVAL" envDefault:"10m"`
	TieredCacheTTL      time.Duration `env:"TIERED_CACHE_TTL" envDefault:"1m"`
	Location            string        `env:"HITCOUNT_LOCATION" envDefault:"UTC"`
	LifetimeTotal       bool          `env:"HITCOUNT_LIFETIME_TOTAL" envDefault:"false"`
	Tracks              []string      `env:"HITCOUNT_TRACKS" envSeparator:","`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Retention hitcount.Retention
	Redis     redisstore.Config
}

func loadConfig() (config, error) {
	var cfg config
	if err := hitcount.LoadEnv(&cfg); err != nil {
		return config{}, err
	}
	if err := cfg.Retention.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// counterOptions turns the config into options shared by every counter.
func (c config) counterOptions(logger *slog.Logger) ([]hitcount.Option, error) {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("HITCOUNT_LOCATION: %w", err)
	}
	opts := []hitcount.Option{
		hitcount.WithLocation(loc),
		hitcount.WithRetention(c.Retention),
		hitcount.WithLogger(logger),
	}
	if c.LifetimeTotal {
		opts = append(opts, hitcount.WithLifetimeTotal())
	}
	return opts, nil
}

// tracks parses HITCOUNT_TRACKS entries of the form name=pattern.
func (c config) tracks() ([]hitcount.Track, error) {
	out := make([]hitcount.Track, 0, len(c.Tracks))
	for _, raw := range c.Tracks {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, pattern, ok := strings.Cut(raw, "=")
		if !ok || name == "" || pattern == "" {
			return nil, fmt.Errorf("HITCOUNT_TRACKS: expected name=pattern, got %q", raw)
		}
		out = append(out, hitcount.Track{Name: strings.TrimSpace(name), Pattern: strings.TrimSpace(pattern)})
	}
	return out, nil
}
