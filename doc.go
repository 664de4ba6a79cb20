// Package hitcount counts discrete events ("hits") in calendar-aligned
// buckets kept in an external key-value store, and answers rolling and
// calendar window queries over them.
//
// # Key Concepts
//
//   - [Counter] is a named counter. Every increment adds one to the bucket of
//     each [Granularity] containing the hit: five seconds, hour, day, ISO
//     week and month.
//   - Buckets are store keys named "{name}:{tag}:{aligned unix seconds}",
//     with tags 5s, h, d, w and m. Alignment is deterministic, so any process
//     computes the same key for the same instant.
//   - [Retention] sets the TTL of each granularity's buckets. Increments
//     refresh TTLs; reads never do. Expired buckets read as zero.
//   - [store.Store] is the key-value backend: in-memory, SQLite, tiered, or
//     Redis (package store/redis).
//   - [Tracker] maps URL patterns to counters and records hits from an
//     http.Handler middleware or an http.RoundTripper.
//
// # Quick Start
//
//	c, err := hitcount.New("site_hits", store.NewMemoryStore())
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = c.Increment(ctx)
//
//	lastHour, _ := c.CountsInLastHour(ctx)
//	today, _ := c.CountsForDay(ctx, time.Now())
//
// Increments are atomic per bucket but not across granularities: a failed
// write is reported in an [IncrementError] while the other buckets keep
// their hit.
package hitcount
