package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a queue item. Pending is the only at-rest
// state; in-flight exists for the duration of one dispatch and is reset to
// pending on startup recovery.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusDead     Status = "dead"
)

// Operation is the logical remote operation of a queue item.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationCustom Operation = "custom"
)

// Priority orders items within a sync pass. Higher values are dispatched
// first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityMedium Priority = 1
	PriorityHigh   Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParsePriority maps a priority name to its value. Unknown names map to low.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Payload is a tagged union over known operation payload kinds plus an
// opaque body, so the engine can route items without inspecting payload
// internals.
type Payload struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// Item is one durable pending write. Its ID doubles as the idempotency key
// sent to the remote service, so a retried item that succeeded server-side
// but failed to acknowledge is not applied twice.
type Item struct {
	ID            string
	EntityType    string
	Operation     Operation
	Payload       Payload
	Priority      Priority
	Attempts      int
	Status        Status
	CreatedAt     time.Time
	LastAttemptAt *time.Time
	LastError     string
}

// NewItem builds a pending item with a fresh idempotency key.
func NewItem(entityType string, op Operation, payload Payload, priority Priority, now time.Time) *Item {
	return &Item{
		ID:         uuid.NewString(),
		EntityType: entityType,
		Operation:  op,
		Payload:    payload,
		Priority:   priority,
		Status:     StatusPending,
		CreatedAt:  now,
	}
}

// BackoffDelay returns min(max, base * 2^attempts). The delay is
// monotonically non-decreasing in attempts.
func BackoffDelay(attempts int, base, max time.Duration) time.Duration {
	if attempts <= 0 {
		return base
	}
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max || delay <= 0 { // <= 0 guards overflow
			return max
		}
	}
	return delay
}

// EligibleAt returns the instant the item may be dispatched again. Items that
// were never attempted are eligible immediately.
func (i *Item) EligibleAt(base, max time.Duration) time.Time {
	if i.LastAttemptAt == nil {
		return i.CreatedAt
	}
	return i.LastAttemptAt.Add(BackoffDelay(i.Attempts, base, max))
}
