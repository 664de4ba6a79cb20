package hitcount

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Retention holds the TTL applied to buckets of each granularity. A zero
// duration means buckets of that granularity never expire.
type Retention struct {
	FiveSeconds time.Duration `env:"HITCOUNT_FIVE_SECONDS_TTL" envDefault:"25h"`
	Hour        time.Duration `env:"HITCOUNT_HOUR_TTL" envDefault:"192h"`
	Day         time.Duration `env:"HITCOUNT_DAY_TTL" envDefault:"1488h"`
	Week        time.Duration `env:"HITCOUNT_WEEK_TTL" envDefault:"8904h"`
	Month       time.Duration `env:"HITCOUNT_MONTH_TTL" envDefault:"0s"`
}

// DefaultRetention keeps five-second buckets for 25 hours, hours for 8 days,
// days for 62 days, weeks for 371 days and months forever.
func DefaultRetention() Retention {
	return Retention{
		FiveSeconds: 25 * time.Hour,
		Hour:        8 * 24 * time.Hour,
		Day:         62 * 24 * time.Hour,
		Week:        371 * 24 * time.Hour,
		Month:       0,
	}
}

// For returns the TTL of g.
func (r Retention) For(g Granularity) time.Duration {
	switch g {
	case FiveSeconds:
		return r.FiveSeconds
	case Hour:
		return r.Hour
	case Day:
		return r.Day
	case Week:
		return r.Week
	case Month:
		return r.Month
	default:
		return 0
	}
}

// Validate rejects negative TTLs.
func (r Retention) Validate() error {
	for _, g := range Granularities {
		if r.For(g) < 0 {
			return fmt.Errorf("hitcount: negative %s retention %v", g, r.For(g))
		}
	}
	return nil
}

var dotenvOnce sync.Once

// loadDotEnv reads a .env file from the working directory once per process.
// A missing file is not an error; variables already set are not overridden.
func loadDotEnv() {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
}

// LoadRetention reads retention settings from the environment (and .env),
// falling back to DefaultRetention values for unset variables.
func LoadRetention() (Retention, error) {
	loadDotEnv()

	r, err := env.ParseAs[Retention]()
	if err != nil {
		return Retention{}, fmt.Errorf("hitcount: load retention: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Retention{}, err
	}
	return r, nil
}

// LoadEnv parses environment variables into cfg, which must be a pointer to
// a struct with caarlos0/env tags, after loading an optional .env file.
func LoadEnv(cfg any) error {
	loadDotEnv()
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("hitcount: load config: %w", err)
	}
	return nil
}
