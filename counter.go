package hitcount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ryhazerus/hitcount/store"
)

// Rolling window spans used by the CountsInLast* helpers. A month is taken
// as thirty days.
const (
	SpanFiveSeconds = 5 * time.Second
	SpanHour        = time.Hour
	SpanDay         = 24 * time.Hour
	SpanWeek        = 7 * SpanDay
	SpanMonth       = 30 * SpanDay
)

// MaxSeriesPoints caps the number of buckets a single Series call may read.
const MaxSeriesPoints = 10000

// identityRules keeps identities printable and free of the key delimiter and
// of the glob characters SCAN MATCH interprets.
const identityRules = `required,max=200,printascii,excludesall=:*?[]\`

var validate = validator.New(validator.WithRequiredStructEnabled())

// Timestamps are limited to years 1 through 9999, the range time.Time
// formats and aligns without overflow. Bucket keys carry negative Unix
// seconds for instants before 1970.
var (
	minTimestamp = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTimestamp = time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Counter records hits into calendar-aligned buckets and answers window
// queries over them. A Counter holds no mutable state of its own and is safe
// for concurrent use; all counting happens in the store through atomic
// increments.
type Counter struct {
	name      string
	store     store.Store
	loc       *time.Location
	retention Retention
	now       func() time.Time
	logger    *slog.Logger
	total     bool
}

// New creates a counter named name over s. It validates the name but does
// not touch the store: buckets appear on the first increment.
func New(name string, s store.Store, opts ...Option) (*Counter, error) {
	if err := validate.Var(name, identityRules); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidIdentity, name, err)
	}
	if s == nil {
		return nil, errors.New("hitcount: nil store")
	}

	c := &Counter{
		name:      name,
		store:     s,
		loc:       time.UTC,
		retention: DefaultRetention(),
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.retention.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the counter identity.
func (c *Counter) Name() string {
	return c.name
}

// Location returns the time zone buckets are aligned in.
func (c *Counter) Location() *time.Location {
	return c.loc
}

// BucketKey returns the store key of the g-bucket containing t:
// "{name}:{tag}:{aligned unix seconds}".
func (c *Counter) BucketKey(g Granularity, t time.Time) string {
	return c.name + ":" + g.Tag() + ":" + strconv.FormatInt(g.Align(t, c.loc).Unix(), 10)
}

func (c *Counter) totalKey() string {
	return c.name + ":total"
}

// Increment records one hit at the current time.
func (c *Counter) Increment(ctx context.Context) error {
	return c.IncrementAt(ctx, c.now())
}

// IncrementAt records one hit at t into the bucket of every granularity,
// refreshing each bucket's TTL. Past and future timestamps are accepted.
//
// Each bucket is written independently. If any write fails the others are
// kept and an *IncrementError listing the failed buckets is returned.
func (c *Counter) IncrementAt(ctx context.Context, t time.Time) error {
	if err := checkTimestamp(t); err != nil {
		return err
	}

	var failed []*BucketError
	attempted := 0
	write := func(granularity, key string, ttl time.Duration) {
		attempted++
		if err := c.bump(ctx, key, ttl); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "hitcount: bucket write failed",
				slog.String("counter", c.name),
				slog.String("granularity", granularity),
				slog.String("key", key),
				slog.Any("error", err),
			)
			failed = append(failed, &BucketError{Key: key, Err: err})
		}
	}

	for _, g := range Granularities {
		write(g.String(), c.BucketKey(g, t), c.retention.For(g))
	}
	if c.total {
		write("total", c.totalKey(), 0)
	}

	if len(failed) == 0 {
		return nil
	}
	return &IncrementError{Counter: c.name, Attempted: attempted, Failed: failed}
}

// bump increments key and sets its TTL, in one call when the store allows.
func (c *Counter) bump(ctx context.Context, key string, ttl time.Duration) error {
	var err error
	if ie, ok := c.store.(store.IncrExpirer); ok {
		_, err = ie.IncrExpire(ctx, key, ttl)
	} else {
		_, err = c.store.Incr(ctx, key)
		if err == nil && ttl > 0 {
			err = c.store.Expire(ctx, key, ttl)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// CurrentCount returns the count of the five-second bucket containing now.
// It is a coarse recent-activity signal, not a total.
func (c *Counter) CurrentCount(ctx context.Context) (int64, error) {
	return c.get(ctx, c.BucketKey(FiveSeconds, c.now()))
}

// CountFor returns the count of the single g-bucket containing t. Missing
// and expired buckets count as zero.
func (c *Counter) CountFor(ctx context.Context, g Granularity, t time.Time) (int64, error) {
	if err := checkTimestamp(t); err != nil {
		return 0, err
	}
	return c.get(ctx, c.BucketKey(g, t))
}

// CountsForHour returns the count of the hour containing t.
func (c *Counter) CountsForHour(ctx context.Context, t time.Time) (int64, error) {
	return c.CountFor(ctx, Hour, t)
}

// CountsForDay returns the count of the day containing t.
func (c *Counter) CountsForDay(ctx context.Context, t time.Time) (int64, error) {
	return c.CountFor(ctx, Day, t)
}

// CountsForWeek returns the count of the ISO week containing t.
func (c *Counter) CountsForWeek(ctx context.Context, t time.Time) (int64, error) {
	return c.CountFor(ctx, Week, t)
}

// CountsForMonth returns the count of the calendar month containing t.
func (c *Counter) CountsForMonth(ctx context.Context, t time.Time) (int64, error) {
	return c.CountFor(ctx, Month, t)
}

// CountsInLastFiveSeconds sums the five-second buckets starting in the last
// five seconds.
func (c *Counter) CountsInLastFiveSeconds(ctx context.Context) (int64, error) {
	return c.CountsInLast(ctx, SpanFiveSeconds)
}

// CountsInLastHour sums the hits of the last hour.
func (c *Counter) CountsInLastHour(ctx context.Context) (int64, error) {
	return c.CountsInLast(ctx, SpanHour)
}

// CountsInLastDay sums the hits of the last 24 hours.
func (c *Counter) CountsInLastDay(ctx context.Context) (int64, error) {
	return c.CountsInLast(ctx, SpanDay)
}

// CountsInLastWeek sums the hits of the last 7 days.
func (c *Counter) CountsInLastWeek(ctx context.Context) (int64, error) {
	return c.CountsInLast(ctx, SpanWeek)
}

// CountsInLastMonth sums the hits of the last 30 days.
func (c *Counter) CountsInLastMonth(ctx context.Context) (int64, error) {
	return c.CountsInLast(ctx, SpanMonth)
}

// CountsInLast returns the sum of every five-second bucket whose start s
// satisfies now-span <= s <= now.
//
// The sum is read without scanning the store: the buckets' time range is
// tiled with the coarsest buckets that fit inside it (see Cover), so a month
// costs a few hundred lookups rather than half a million. Expired buckets
// count as zero, which can only undercount.
func (c *Counter) CountsInLast(ctx context.Context, span time.Duration) (int64, error) {
	if span < 0 {
		return 0, fmt.Errorf("%w: negative span %v", ErrInvalidSpan, span)
	}
	now := c.now()
	return c.sum(ctx, c.Cover(now.Add(-span), now))
}

// Cover returns the bucket keys whose union is exactly the five-second
// buckets starting within [from, to]. The range is walked from the left,
// taking at each step the coarsest bucket that starts there and ends within
// the range.
func (c *Counter) Cover(from, to time.Time) []string {
	fromSec := from.Unix()
	if from.Nanosecond() > 0 {
		fromSec++
	}
	first := -floorDiv(-fromSec, 5) * 5
	last := floorDiv(to.Unix(), 5) * 5
	if first > last {
		return nil
	}

	lo := time.Unix(first, 0).In(c.loc)
	hi := time.Unix(last+5, 0).In(c.loc)

	var keys []string
	for p := lo; p.Before(hi); {
		g, next := FiveSeconds, FiveSeconds.Next(p, c.loc)
		for _, cg := range []Granularity{Month, Week, Day, Hour} {
			if !cg.Align(p, c.loc).Equal(p) {
				continue
			}
			if n := cg.Next(p, c.loc); !n.After(hi) {
				g, next = cg, n
				break
			}
		}
		keys = append(keys, c.BucketKey(g, p))
		p = next
	}
	return keys
}

// Point is one bucket of a Series.
type Point struct {
	Start time.Time `json:"start"`
	Count int64     `json:"count"`
}

// Series returns one point per g-period from the period containing from up
// to the period containing to, with zero for missing buckets.
func (c *Counter) Series(ctx context.Context, g Granularity, from, to time.Time) ([]Point, error) {
	if err := checkTimestamp(from); err != nil {
		return nil, err
	}
	if err := checkTimestamp(to); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range ends before it starts", ErrInvalidSpan)
	}

	var (
		points []Point
		keys   []string
	)
	for p := g.Align(from, c.loc); !p.After(to); p = g.Next(p, c.loc) {
		if len(points) == MaxSeriesPoints {
			return nil, fmt.Errorf("%w: more than %d %s buckets", ErrInvalidSpan, MaxSeriesPoints, g)
		}
		points = append(points, Point{Start: p})
		keys = append(keys, c.BucketKey(g, p))
	}

	vals, err := c.store.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	for i := range points {
		points[i].Count = vals[i]
	}
	return points, nil
}

// Total returns the lifetime count kept when the counter was created with
// WithLifetimeTotal.
func (c *Counter) Total(ctx context.Context) (int64, error) {
	return c.get(ctx, c.totalKey())
}

// Reset zeroes the counter by deleting every bucket and the lifetime total.
// The next increment recreates buckets starting from zero.
func (c *Counter) Reset(ctx context.Context) error {
	keys := []string{c.totalKey()}
	for _, g := range Granularities {
		found, err := c.store.Keys(ctx, c.name+":"+g.Tag()+":")
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		keys = append(keys, found...)
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes every key under the counter's namespace.
func (c *Counter) Delete(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, c.name+":")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (c *Counter) get(ctx context.Context, key string) (int64, error) {
	n, err := c.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (c *Counter) sum(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	vals, err := c.store.MGet(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	var total int64
	for _, v := range vals {
		total += v
	}
	return total, nil
}

// checkTimestamp rejects the zero time, which marks an unset timestamp, and
// instants outside [minTimestamp, maxTimestamp).
func checkTimestamp(t time.Time) error {
	if t.IsZero() || t.Before(minTimestamp) || !t.Before(maxTimestamp) {
		return fmt.Errorf("%w: %v", ErrInvalidTimestamp, t)
	}
	return nil
}
