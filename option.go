package hitcount

import (
	"log/slog"
	"time"
)

// Option configures a Counter.
type Option func(*Counter)

// WithLocation sets the time zone hour, day, week and month buckets are
// aligned in. The default is UTC. Changing it changes bucket keys, so every
// process sharing a store must agree on it.
func WithLocation(loc *time.Location) Option {
	return func(c *Counter) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithRetention sets the TTL given to buckets of each granularity.
func WithRetention(r Retention) Option {
	return func(c *Counter) {
		c.retention = r
	}
}

// WithClock replaces time.Now as the source of "now".
func WithClock(now func() time.Time) Option {
	return func(c *Counter) {
		c.now = now
	}
}

// WithLogger sets the logger failed bucket writes are reported to.
// By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *Counter) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLifetimeTotal makes every increment also bump a never-expiring total,
// readable with Counter.Total.
func WithLifetimeTotal() Option {
	return func(c *Counter) {
		c.total = true
	}
}
