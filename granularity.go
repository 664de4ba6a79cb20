package hitcount

import (
	"fmt"
	"time"
)

// Granularity is the unit a timestamp is aligned to when it is counted.
type Granularity int

const (
	// FiveSeconds counts hits in five-second buckets aligned to the Unix epoch.
	FiveSeconds Granularity = iota
	// Hour counts hits per clock hour.
	Hour
	// Day counts hits per calendar day, starting at local midnight.
	Day
	// Week counts hits per ISO week, starting Monday at local midnight.
	Week
	// Month counts hits per calendar month.
	Month
)

// Granularities lists every granularity a counter maintains, finest first.
var Granularities = []Granularity{FiveSeconds, Hour, Day, Week, Month}

// Tag returns the short fixed string used in bucket keys. Tags are part of
// the stored key format and must never change.
func (g Granularity) Tag() string {
	switch g {
	case FiveSeconds:
		return "5s"
	case Hour:
		return "h"
	case Day:
		return "d"
	case Week:
		return "w"
	case Month:
		return "m"
	default:
		return "?"
	}
}

// ParseGranularity maps a name ("hour") or tag ("h") back to a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "five_seconds", "5s":
		return FiveSeconds, nil
	case "hour", "h":
		return Hour, nil
	case "day", "d":
		return Day, nil
	case "week", "w":
		return Week, nil
	case "month", "m":
		return Month, nil
	}
	return 0, fmt.Errorf("hitcount: unknown granularity %q", s)
}

// Align returns the start of the g-period containing t, in loc.
// Align is idempotent: aligning an aligned time returns it unchanged.
func (g Granularity) Align(t time.Time, loc *time.Location) time.Time {
	if g == FiveSeconds {
		return time.Unix(floorDiv(t.Unix(), 5)*5, 0).In(loc)
	}

	t = t.In(loc)
	switch g {
	case Hour:
		// Computed on the absolute clock so repeated DST hours stay distinct.
		_, offset := t.Zone()
		local := t.Unix() + int64(offset)
		return time.Unix(floorDiv(local, 3600)*3600-int64(offset), 0).In(loc)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case Week:
		// ISO 8601: weeks start on Monday.
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, loc)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return time.Unix(floorDiv(t.Unix(), 5)*5, 0).In(loc)
	}
}

// Next returns the start of the g-period following the one containing t.
// Calendar units use date arithmetic so DST transitions are handled.
func (g Granularity) Next(t time.Time, loc *time.Location) time.Time {
	start := g.Align(t, loc)
	switch g {
	case FiveSeconds:
		return start.Add(5 * time.Second)
	case Hour:
		return start.Add(time.Hour)
	case Day:
		return time.Date(start.Year(), start.Month(), start.Day()+1, 0, 0, 0, 0, loc)
	case Week:
		return time.Date(start.Year(), start.Month(), start.Day()+7, 0, 0, 0, 0, loc)
	case Month:
		return time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, loc)
	default:
		return start.Add(5 * time.Second)
	}
}

func (g Granularity) String() string {
	switch g {
	case FiveSeconds:
		return "five_seconds"
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return fmt.Sprintf("Granularity(%d)", int(g))
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
