// Package queue holds the durable collection of pending writes and its state
// machine. It is a data structure, not a process: draining it is the sync
// engine's job.
package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/exp/slog"
)

// Config carries the retry and selection tunables of the queue.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Queue is a durable, ordered collection of pending operations with priority
// and retry bookkeeping.
type Queue struct {
	repo Repository
	cfg  Config
	log  *slog.Logger
}

// New creates a Queue backed by repo.
func New(repo Repository, cfg Config, log *slog.Logger) *Queue {
	return &Queue{repo: repo, cfg: cfg, log: log}
}

// Enqueue persists a new pending item.
func (q *Queue) Enqueue(ctx context.Context, item *Item) error {
	if item.Status != StatusPending {
		return fmt.Errorf("only pending items may be enqueued, got %q", item.Status)
	}
	if err := q.repo.InsertItem(ctx, item); err != nil {
		return fmt.Errorf("failed to enqueue item %s: %w", item.ID, err)
	}
	q.log.Debug("item enqueued",
		"id", item.ID,
		"entity", item.EntityType,
		"operation", item.Operation,
		"priority", item.Priority.String(),
	)
	return nil
}

// SelectBatch picks up to limit eligible pending items in dispatch order
// (priority desc, createdAt asc, insertion order) and marks them in-flight.
// The caller must hold the engine's single-run lock; selection and marking
// together form the critical section of a sync pass.
func (q *Queue) SelectBatch(ctx context.Context, now time.Time, limit int) ([]*Item, error) {
	pending, err := q.repo.ListByStatus(ctx, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}

	batch := make([]*Item, 0, limit)
	ids := make([]string, 0, limit)
	for _, item := range pending {
		if len(batch) >= limit {
			break
		}
		if item.EligibleAt(q.cfg.BaseDelay, q.cfg.MaxDelay).After(now) {
			continue
		}
		batch = append(batch, item)
		ids = append(ids, item.ID)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if err := q.repo.MarkInFlight(ctx, ids, now); err != nil {
		return nil, fmt.Errorf("failed to mark batch in-flight: %w", err)
	}
	ts := now
	for _, item := range batch {
		item.Status = StatusInFlight
		item.LastAttemptAt = &ts
	}
	return batch, nil
}

// Complete removes a successfully dispatched item from the queue.
func (q *Queue) Complete(ctx context.Context, id string) error {
	if err := q.repo.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("failed to complete item %s: %w", id, err)
	}
	return nil
}

// Fail records a dispatch failure. Transient failures return the item to
// pending with an incremented attempt count; permanent failures and items
// that exhausted their retries move to dead.
func (q *Queue) Fail(ctx context.Context, item *Item, cause error, transient bool, now time.Time) error {
	item.Attempts++
	item.LastError = cause.Error()
	ts := now
	item.LastAttemptAt = &ts

	switch {
	case !transient:
		item.Status = StatusDead
	case item.Attempts > q.cfg.MaxRetries:
		item.Status = StatusDead
		item.LastError = fmt.Sprintf("%v: %v", ErrMaxRetriesExceeded, cause)
	default:
		item.Status = StatusPending
	}

	if err := q.repo.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("failed to record failure for item %s: %w", item.ID, err)
	}

	if item.Status == StatusDead {
		q.log.Warn("item moved to dead letter",
			"id", item.ID,
			"attempts", item.Attempts,
			"error", item.LastError,
		)
	} else {
		q.log.Debug("item scheduled for retry",
			"id", item.ID,
			"attempts", item.Attempts,
			"next_eligible", item.EligibleAt(q.cfg.BaseDelay, q.cfg.MaxDelay),
		)
	}
	return nil
}

// ResetInFlight returns crash-orphaned in-flight items to pending. Called
// once during orchestrator initialization.
func (q *Queue) ResetInFlight(ctx context.Context) (int, error) {
	n, err := q.repo.ResetInFlight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-flight items: %w", err)
	}
	if n > 0 {
		q.log.Info("recovered in-flight items", "count", n)
	}
	return n, nil
}

// RetryDead returns a dead item to pending with a cleared retry budget.
// This is the manual-resolution path for permanently failed items.
func (q *Queue) RetryDead(ctx context.Context, id string) error {
	item, err := q.repo.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != StatusDead {
		return fmt.Errorf("%w: %s is %s", ErrNotDead, id, item.Status)
	}
	item.Status = StatusPending
	item.Attempts = 0
	item.LastError = ""
	item.LastAttemptAt = nil
	if err := q.repo.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("failed to retry dead item %s: %w", id, err)
	}
	return nil
}

// DiscardDead permanently drops a dead item.
func (q *Queue) DiscardDead(ctx context.Context, id string) error {
	item, err := q.repo.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != StatusDead {
		return fmt.Errorf("%w: %s is %s", ErrNotDead, id, item.Status)
	}
	return q.repo.DeleteItem(ctx, id)
}

// ListDead returns dead items, oldest first.
func (q *Queue) ListDead(ctx context.Context) ([]*Item, error) {
	dead, err := q.repo.ListByStatus(ctx, StatusDead)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(dead, func(i, j int) bool {
		return dead[i].CreatedAt.Before(dead[j].CreatedAt)
	})
	return dead, nil
}

// Counts reports how many items sit in each status.
func (q *Queue) Counts(ctx context.Context) (map[Status]int, error) {
	return q.repo.CountByStatus(ctx)
}
