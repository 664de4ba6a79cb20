// Package store defines the [Store] key-value contract that hit counters are
// built on, and provides three implementations:
//
//   - [MemoryStore]: in-process map with per-key TTLs, lost on restart.
//   - [SQLiteStore]: persistent keys in a SQLite database.
//   - [TieredStore]: a MemoryStore cache in front of a persistent Store.
//
// A Redis implementation lives in the store/redis package. Custom backends
// can be created by implementing the [Store] interface; backends that can
// increment and expire a key atomically should also implement [IncrExpirer].
package store
