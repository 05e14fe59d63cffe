// Package storage defines the durable store contract shared by the sync
// engine components. The concrete implementation lives in the sqlite
// subpackage.
package storage

import (
	"context"
	"errors"
	"time"
)

// SchemaVersion tags every persisted payload. A version mismatch on read is
// treated as a miss: the row is deleted and ErrNotFound is returned, no
// migration is attempted.
const SchemaVersion = 1

// Logical namespaces of the store. Queue items are persisted separately
// through the queue repository, but count toward namespace totals.
const (
	NamespaceEntities = "entities"
	NamespaceDrafts   = "drafts"
	NamespaceQueue    = "queue"
	NamespaceCache    = "cache"
)

var (
	// ErrNotFound is returned when a key is absent, expired (GetIfFresh) or
	// written under a different schema version.
	ErrNotFound = errors.New("key not found")

	// ErrStorage wraps persistence failures. A failed Set never corrupts
	// other keys; the intended state is simply not persisted.
	ErrStorage = errors.New("storage error")
)

// Entry is one (key, value) pair of a namespace listing.
type Entry struct {
	Key        string
	Value      []byte
	StoredAt   time.Time
	TTLSeconds int64
}

// DurableStore is key-addressed persistent storage, namespaced, atomic per
// key.
type DurableStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	// SetWithTTL stores a value that GetIfFresh treats as stale once
	// ttlSeconds have elapsed. A ttl of zero never expires.
	SetWithTTL(ctx context.Context, namespace, key string, value []byte, ttlSeconds int64) error
	Remove(ctx context.Context, namespace, key string) error
	// ListNamespace returns all entries of a namespace in insertion order.
	ListNamespace(ctx context.Context, namespace string) ([]Entry, error)
	// GetIfFresh returns ErrNotFound for entries older than their TTL
	// without deleting them; SweepExpired removes them.
	GetIfFresh(ctx context.Context, namespace, key string) ([]byte, error)
	// RemoveByPrefix deletes every key of a namespace starting with prefix
	// and reports how many rows were removed.
	RemoveByPrefix(ctx context.Context, namespace, prefix string) (int, error)
	SweepExpired(ctx context.Context) (int, error)
	SizeEstimate(ctx context.Context) (int64, error)
	NamespaceCounts(ctx context.Context) (map[string]int, error)
	// OldestEntryAge reports the age of the oldest entry in a namespace, or
	// zero when the namespace is empty.
	OldestEntryAge(ctx context.Context, namespace string) (time.Duration, error)
	// Clear empties every namespace and the queue.
	Clear(ctx context.Context) error
	Close() error
}
