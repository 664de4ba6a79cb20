package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteBatch bounds the number of bound parameters in IN (...) lists.
const sqliteBatch = 500

// Compile-time interface checks.
var (
	_ Store       = (*SQLiteStore)(nil)
	_ IncrExpirer = (*SQLiteStore)(nil)
	_ TTLer       = (*SQLiteStore)(nil)
)

// SQLiteStore is a persistent Store backed by SQLite. Expiry is stored as an
// absolute deadline in Unix nanoseconds; expired rows are invisible to reads
// and are removed by [SQLiteStore.PurgeExpired].
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// initialises the schema. Use ":memory:" for an in-memory SQLite database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("hitcount/store: open sqlite: %w", err)
	}
	// SQLite serialises writers anyway, and ":memory:" databases are per
	// connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS hitcount_keys (
			key        TEXT PRIMARY KEY,
			count      INTEGER NOT NULL DEFAULT 0,
			expires_at INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("hitcount/store: create table: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// liveClause filters out rows whose deadline has passed. It takes one
// argument: the current time in Unix nanoseconds.
const liveClause = `(expires_at = 0 OR expires_at > ?)`

// Incr atomically adds one to the value at key. An expired row restarts at 1
// without a deadline.
func (s *SQLiteStore) Incr(ctx context.Context, key string) (int64, error) {
	now := s.now().UnixNano()

	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO hitcount_keys (key, count, expires_at) VALUES (?, 1, 0)
		ON CONFLICT(key) DO UPDATE SET
			count      = CASE WHEN expires_at > 0 AND expires_at <= ? THEN 1 ELSE count + 1 END,
			expires_at = CASE WHEN expires_at > 0 AND expires_at <= ? THEN 0 ELSE expires_at END
		RETURNING count`,
		key, now, now,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("hitcount/store: incr: %w", err)
	}
	return count, nil
}

// IncrExpire increments key and sets its deadline in one statement.
func (s *SQLiteStore) IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return s.Incr(ctx, key)
	}

	now := s.now()
	deadline := now.Add(ttl).UnixNano()

	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO hitcount_keys (key, count, expires_at) VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			count      = CASE WHEN expires_at > 0 AND expires_at <= ? THEN 1 ELSE count + 1 END,
			expires_at = excluded.expires_at
		RETURNING count`,
		key, deadline, now.UnixNano(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("hitcount/store: incr expire: %w", err)
	}
	return count, nil
}

// Expire sets the deadline of a live key. A non-positive ttl deletes it.
func (s *SQLiteStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Del(ctx, key)
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE hitcount_keys SET expires_at = ? WHERE key = ? AND `+liveClause,
		now.Add(ttl).UnixNano(), key, now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("hitcount/store: expire: %w", err)
	}
	return nil
}

// Get returns the value at key, or 0 if it is absent or expired.
func (s *SQLiteStore) Get(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM hitcount_keys WHERE key = ? AND `+liveClause,
		key, s.now().UnixNano(),
	).Scan(&count)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("hitcount/store: get: %w", err)
	}
	return count, nil
}

// TTL returns the remaining lifetime of key.
func (s *SQLiteStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	now := s.now()

	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM hitcount_keys WHERE key = ? AND `+liveClause,
		key, now.UnixNano(),
	).Scan(&expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("hitcount/store: ttl: %w", err)
	}
	if expiresAt == 0 {
		return 0, nil
	}
	return time.Unix(0, expiresAt).Sub(now), nil
}

// MGet returns the values at keys in order, querying in batches.
func (s *SQLiteStore) MGet(ctx context.Context, keys []string) ([]int64, error) {
	out := make([]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	now := s.now().UnixNano()
	found := make(map[string]int64, len(keys))

	for start := 0; start < len(keys); start += sqliteBatch {
		batch := keys[start:min(start+sqliteBatch, len(keys))]

		args := make([]any, 0, len(batch)+1)
		for _, k := range batch {
			args = append(args, k)
		}
		args = append(args, now)

		rows, err := s.db.QueryContext(ctx,
			`SELECT key, count FROM hitcount_keys WHERE key IN (`+placeholders(len(batch))+`) AND `+liveClause,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("hitcount/store: mget: %w", err)
		}
		for rows.Next() {
			var k string
			var count int64
			if err := rows.Scan(&k, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("hitcount/store: mget scan: %w", err)
			}
			found[k] = count
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("hitcount/store: mget: %w", err)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("hitcount/store: mget: %w", err)
		}
	}

	for i, k := range keys {
		out[i] = found[k]
	}
	return out, nil
}

// Del removes the given keys.
func (s *SQLiteStore) Del(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += sqliteBatch {
		batch := keys[start:min(start+sqliteBatch, len(keys))]

		args := make([]any, len(batch))
		for i, k := range batch {
			args[i] = k
		}

		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM hitcount_keys WHERE key IN (`+placeholders(len(batch))+`)`,
			args...,
		); err != nil {
			return fmt.Errorf("hitcount/store: del: %w", err)
		}
	}
	return nil
}

// Keys lists the live keys starting with prefix.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM hitcount_keys WHERE substr(key, 1, length(?)) = ? AND `+liveClause,
		prefix, prefix, s.now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("hitcount/store: keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("hitcount/store: keys scan: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hitcount/store: keys: %w", err)
	}
	return out, nil
}

// PurgeExpired deletes rows whose deadline has passed and reports how many
// were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM hitcount_keys WHERE expires_at > 0 AND expires_at <= ?`,
		s.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("hitcount/store: purge: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
