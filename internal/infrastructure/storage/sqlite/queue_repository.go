package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"fieldsync/internal/domain/queue"
)

// Compile-time check that Store satisfies the queue repository.
var _ queue.Repository = (*Store)(nil)

const queueColumns = `id, entity_type, operation, payload_kind, payload,
	priority, attempts, status, created_at, last_attempt_at, last_error`

// InsertItem persists a new queue item. The payload body is opaque and may
// be empty; a nil body is stored as an empty blob, not SQL NULL.
func (s *Store) InsertItem(ctx context.Context, item *queue.Item) error {
	var lastAttempt sql.NullInt64
	if item.LastAttemptAt != nil {
		lastAttempt = sql.NullInt64{Int64: item.LastAttemptAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_items (`+queueColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.EntityType, string(item.Operation),
		item.Payload.Kind, notNull(item.Payload.Body),
		int(item.Priority), item.Attempts, string(item.Status),
		item.CreatedAt.UnixMilli(), lastAttempt, item.LastError)
	if err != nil {
		return wrapStorage(err)
	}
	return nil
}

// GetItem loads one item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*queue.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, queue.ErrItemNotFound
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	return item, nil
}

// UpdateItem rewrites the mutable bookkeeping fields of an item.
func (s *Store) UpdateItem(ctx context.Context, item *queue.Item) error {
	var lastAttempt sql.NullInt64
	if item.LastAttemptAt != nil {
		lastAttempt = sql.NullInt64{Int64: item.LastAttemptAt.UnixMilli(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items
		 SET attempts = ?, status = ?, last_attempt_at = ?, last_error = ?
		 WHERE id = ?`,
		item.Attempts, string(item.Status), lastAttempt, item.LastError, item.ID)
	if err != nil {
		return wrapStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorage(err)
	}
	if n == 0 {
		return queue.ErrItemNotFound
	}
	return nil
}

// DeleteItem removes an item by id.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id); err != nil {
		return wrapStorage(err)
	}
	return nil
}

// ListByStatus returns items of one status in dispatch order: priority
// descending, createdAt ascending, insertion order as the tie break.
func (s *Store) ListByStatus(ctx context.Context, status queue.Status) ([]*queue.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM queue_items WHERE status = ?
		 ORDER BY priority DESC, created_at ASC, rowid ASC`,
		string(status))
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()

	var items []*queue.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapStorage(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage(err)
	}
	return items, nil
}

// MarkInFlight flips the given pending items to in-flight in one transaction.
func (s *Store) MarkInFlight(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, string(queue.StatusInFlight), now.UnixMilli())
	for _, id := range ids {
		args = append(args, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorage(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, last_attempt_at = ?
		 WHERE id IN (`+placeholders+`) AND status = 'pending'`, args...); err != nil {
		return wrapStorage(err)
	}
	if err := tx.Commit(); err != nil {
		return wrapStorage(err)
	}
	return nil
}

// ResetInFlight returns crash-orphaned in-flight items to pending.
func (s *Store) ResetInFlight(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = 'pending' WHERE status = 'in_flight'`)
	if err != nil {
		return 0, wrapStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStorage(err)
	}
	return int(n), nil
}

// CountByStatus reports item counts per status.
func (s *Store) CountByStatus(ctx context.Context) (map[queue.Status]int, error) {
	counts := map[queue.Status]int{
		queue.StatusPending:  0,
		queue.StatusInFlight: 0,
		queue.StatusDead:     0,
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrapStorage(err)
		}
		counts[queue.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage(err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*queue.Item, error) {
	var (
		item        queue.Item
		op          string
		status      string
		priority    int
		createdAt   int64
		lastAttempt sql.NullInt64
		body        []byte
	)
	if err := row.Scan(&item.ID, &item.EntityType, &op, &item.Payload.Kind, &body,
		&priority, &item.Attempts, &status, &createdAt, &lastAttempt, &item.LastError); err != nil {
		return nil, err
	}
	item.Operation = queue.Operation(op)
	item.Status = queue.Status(status)
	item.Priority = queue.Priority(priority)
	item.Payload.Body = body
	item.CreatedAt = time.UnixMilli(createdAt)
	if lastAttempt.Valid {
		t := time.UnixMilli(lastAttempt.Int64)
		item.LastAttemptAt = &t
	}
	return &item, nil
}
