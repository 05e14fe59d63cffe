// Package sqlite implements the durable store and the queue repository on a
// single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"

	"fieldsync/internal/infrastructure/storage"
)

// Store is the SQLite-backed DurableStore. A single connection serializes all
// writes, so no two writers can race on the same key.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Open creates or opens the database at path, runs migrations and sweeps
// expired cache entries.
func Open(path string, log *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	if err := runMigrations(dsn, defaultEngine); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log, now: time.Now}

	if n, err := s.SweepExpired(context.Background()); err != nil {
		log.Warn("startup cache sweep failed", "error", err)
	} else if n > 0 {
		log.Debug("swept expired cache entries", "count", n)
	}

	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func wrapStorage(err error) error {
	return fmt.Errorf("%w: %v", storage.ErrStorage, err)
}

// notNull keeps a nil byte slice from binding as SQL NULL; the blob columns
// are NOT NULL and an empty value is legal.
func notNull(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Get returns the value stored under (namespace, key). A schema version
// mismatch deletes the row and reports a miss.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	value, _, _, err := s.read(ctx, namespace, key)
	return value, err
}

// GetIfFresh behaves like Get but reports a miss for entries older than
// their TTL. The stale row is left in place for the offline read path.
func (s *Store) GetIfFresh(ctx context.Context, namespace, key string) ([]byte, error) {
	value, storedAt, ttl, err := s.read(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	if ttl > 0 && s.now().Sub(storedAt) > time.Duration(ttl)*time.Second {
		return nil, storage.ErrNotFound
	}
	return value, nil
}

func (s *Store) read(ctx context.Context, namespace, key string) ([]byte, time.Time, int64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, schema_version, stored_at, ttl_seconds FROM kv WHERE namespace = ? AND key = ?`,
		namespace, key)

	var (
		value   []byte
		version int
		stored  int64
		ttl     int64
	)
	if err := row.Scan(&value, &version, &stored, &ttl); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, 0, storage.ErrNotFound
		}
		return nil, time.Time{}, 0, wrapStorage(err)
	}

	if version != storage.SchemaVersion {
		// Versioned payloads are never migrated: delete then miss.
		if err := s.Remove(ctx, namespace, key); err != nil {
			s.log.Warn("failed to drop stale-version entry",
				"namespace", namespace, "key", key, "error", err)
		}
		return nil, time.Time{}, 0, storage.ErrNotFound
	}

	return value, time.UnixMilli(stored), ttl, nil
}

// Set stores a value with no TTL.
func (s *Store) Set(ctx context.Context, namespace, key string, value []byte) error {
	return s.SetWithTTL(ctx, namespace, key, value, 0)
}

// SetWithTTL stores a value. An upsert keeps the original rowid so namespace
// listings preserve insertion order across overwrites.
func (s *Store) SetWithTTL(ctx context.Context, namespace, key string, value []byte, ttlSeconds int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (namespace, key, value, schema_version, stored_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
		   value = excluded.value,
		   schema_version = excluded.schema_version,
		   stored_at = excluded.stored_at,
		   ttl_seconds = excluded.ttl_seconds`,
		namespace, key, notNull(value), storage.SchemaVersion, s.now().UnixMilli(), ttlSeconds)
	if err != nil {
		return wrapStorage(err)
	}
	return nil
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE namespace = ? AND key = ?`, namespace, key); err != nil {
		return wrapStorage(err)
	}
	return nil
}

// RemoveByPrefix deletes every key of a namespace starting with prefix.
func (s *Store) RemoveByPrefix(ctx context.Context, namespace, prefix string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE namespace = ? AND key LIKE ? || '%'`, namespace, prefix)
	if err != nil {
		return 0, wrapStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStorage(err)
	}
	return int(n), nil
}

// ListNamespace returns all entries of a namespace in insertion order.
func (s *Store) ListNamespace(ctx context.Context, namespace string) ([]storage.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, stored_at, ttl_seconds FROM kv WHERE namespace = ? ORDER BY rowid ASC`,
		namespace)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		var (
			e      storage.Entry
			stored int64
		)
		if err := rows.Scan(&e.Key, &e.Value, &stored, &e.TTLSeconds); err != nil {
			return nil, wrapStorage(err)
		}
		e.StoredAt = time.UnixMilli(stored)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage(err)
	}
	return entries, nil
}

// SweepExpired deletes cache entries past their TTL.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	nowMs := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv
		 WHERE namespace = ? AND ttl_seconds > 0 AND ? - stored_at > ttl_seconds * 1000`,
		storage.NamespaceCache, nowMs)
	if err != nil {
		return 0, wrapStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStorage(err)
	}
	return int(n), nil
}

// SizeEstimate reports the database size in bytes from page pragmas.
func (s *Store) SizeEstimate(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return 0, wrapStorage(err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return 0, wrapStorage(err)
	}
	return pageCount * pageSize, nil
}

// NamespaceCounts reports row counts per namespace, queue included.
func (s *Store) NamespaceCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{
		storage.NamespaceEntities: 0,
		storage.NamespaceDrafts:   0,
		storage.NamespaceQueue:    0,
		storage.NamespaceCache:    0,
	}

	rows, err := s.db.QueryContext(ctx, `SELECT namespace, COUNT(*) FROM kv GROUP BY namespace`)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ns string
			n  int
		)
		if err := rows.Scan(&ns, &n); err != nil {
			return nil, wrapStorage(err)
		}
		counts[ns] = n
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage(err)
	}

	var queued int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_items`).Scan(&queued); err != nil {
		return nil, wrapStorage(err)
	}
	counts[storage.NamespaceQueue] = queued

	return counts, nil
}

// OldestEntryAge reports the age of the oldest entry in a namespace.
func (s *Store) OldestEntryAge(ctx context.Context, namespace string) (time.Duration, error) {
	var oldest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(stored_at) FROM kv WHERE namespace = ?`, namespace).Scan(&oldest)
	if err != nil {
		return 0, wrapStorage(err)
	}
	if !oldest.Valid {
		return 0, nil
	}
	return s.now().Sub(time.UnixMilli(oldest.Int64)), nil
}

// Clear empties every namespace and the queue table.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorage(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return wrapStorage(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_items`); err != nil {
		return wrapStorage(err)
	}
	if err := tx.Commit(); err != nil {
		return wrapStorage(err)
	}
	return nil
}
