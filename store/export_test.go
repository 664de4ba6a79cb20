package store

import "time"

// SetSQLiteClock replaces the clock of a SQLiteStore for expiry tests.
func SetSQLiteClock(s *SQLiteStore, now func() time.Time) {
	s.now = now
}
