package queue

import (
	"context"
	"time"
)

// Repository persists queue items. Implementations must keep every mutation
// atomic per item and must order listings by (priority desc, createdAt asc,
// insertion order asc) so replay order is deterministic.
type Repository interface {
	InsertItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id string) (*Item, error)
	UpdateItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, id string) error

	// ListByStatus returns items of the given status in dispatch order.
	ListByStatus(ctx context.Context, status Status) ([]*Item, error)

	// MarkInFlight flips the given pending items to in-flight and stamps
	// lastAttemptAt in one transaction.
	MarkInFlight(ctx context.Context, ids []string, now time.Time) error

	// ResetInFlight returns every in-flight item to pending; run on startup
	// recovery. Reports how many rows were touched.
	ResetInFlight(ctx context.Context) (int, error)

	CountByStatus(ctx context.Context) (map[Status]int, error)
}
