package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/domain/queue"
)

func TestQueueItemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Now().Truncate(time.Millisecond)
	item := queue.NewItem("reports", queue.OperationCreate, queue.Payload{
		Kind: "report",
		Body: json.RawMessage(`{"siteId":"42"}`),
	}, queue.PriorityHigh, created)
	item.LastError = "previous failure"

	require.NoError(t, s.InsertItem(ctx, item))

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, "reports", got.EntityType)
	assert.Equal(t, queue.OperationCreate, got.Operation)
	assert.Equal(t, "report", got.Payload.Kind)
	assert.JSONEq(t, `{"siteId":"42"}`, string(got.Payload.Body))
	assert.Equal(t, queue.PriorityHigh, got.Priority)
	assert.Equal(t, queue.StatusPending, got.Status)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.LastAttemptAt)
	assert.Equal(t, "previous failure", got.LastError)
}

func TestQueueItemWithEmptyPayloadBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The payload body is opaque and may legitimately be absent.
	item := queue.NewItem("reports", queue.OperationCustom, queue.Payload{Kind: "ack"},
		queue.PriorityHigh, time.Now().Truncate(time.Millisecond))
	require.NoError(t, s.InsertItem(ctx, item))

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "ack", got.Payload.Kind)
	assert.Empty(t, got.Payload.Body)
}

func TestGetItemMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetItem(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, queue.ErrItemNotFound)
}

func TestUpdateItemMissing(t *testing.T) {
	s := newTestStore(t)

	item := queue.NewItem("reports", queue.OperationCreate, queue.Payload{}, queue.PriorityLow, time.Now())
	err := s.UpdateItem(context.Background(), item)
	assert.ErrorIs(t, err, queue.ErrItemNotFound)
}

func TestListByStatusDispatchOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	lowOld := queue.NewItem("a", queue.OperationCreate, queue.Payload{}, queue.PriorityLow, now)
	highNew := queue.NewItem("b", queue.OperationCreate, queue.Payload{}, queue.PriorityHigh, now.Add(2*time.Second))
	highOld := queue.NewItem("c", queue.OperationCreate, queue.Payload{}, queue.PriorityHigh, now.Add(time.Second))
	medium := queue.NewItem("d", queue.OperationCreate, queue.Payload{}, queue.PriorityMedium, now)

	for _, item := range []*queue.Item{lowOld, highNew, highOld, medium} {
		require.NoError(t, s.InsertItem(ctx, item))
	}

	items, err := s.ListByStatus(ctx, queue.StatusPending)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, highOld.ID, items[0].ID)
	assert.Equal(t, highNew.ID, items[1].ID)
	assert.Equal(t, medium.ID, items[2].ID)
	assert.Equal(t, lowOld.ID, items[3].ID)
}

func TestListByStatusInsertionOrderTieBreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	first := queue.NewItem("a", queue.OperationCreate, queue.Payload{}, queue.PriorityMedium, now)
	second := queue.NewItem("b", queue.OperationCreate, queue.Payload{}, queue.PriorityMedium, now)

	require.NoError(t, s.InsertItem(ctx, first))
	require.NoError(t, s.InsertItem(ctx, second))

	items, err := s.ListByStatus(ctx, queue.StatusPending)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID, "identical priority and createdAt fall back to insertion order")
	assert.Equal(t, second.ID, items[1].ID)
}

func TestMarkInFlightOnlyTouchesPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	pending := queue.NewItem("a", queue.OperationCreate, queue.Payload{}, queue.PriorityHigh, now)
	dead := queue.NewItem("b", queue.OperationCreate, queue.Payload{}, queue.PriorityHigh, now)
	dead.Status = queue.StatusDead

	require.NoError(t, s.InsertItem(ctx, pending))
	require.NoError(t, s.InsertItem(ctx, dead))

	require.NoError(t, s.MarkInFlight(ctx, []string{pending.ID, dead.ID}, now))

	got, err := s.GetItem(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusInFlight, got.Status)
	require.NotNil(t, got.LastAttemptAt)
	assert.True(t, got.LastAttemptAt.Equal(now))

	got, err = s.GetItem(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusDead, got.Status)
}

func TestResetInFlightRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	item := queue.NewItem("a", queue.OperationCreate, queue.Payload{}, queue.PriorityHigh, now)
	require.NoError(t, s.InsertItem(ctx, item))
	require.NoError(t, s.MarkInFlight(ctx, []string{item.ID}, now))

	n, err := s.ResetInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, got.Status)
}

func TestCountByStatusRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertItem(ctx, queue.NewItem("a", queue.OperationCreate, queue.Payload{}, queue.PriorityLow, now)))
	}
	dead := queue.NewItem("b", queue.OperationCreate, queue.Payload{}, queue.PriorityLow, now)
	dead.Status = queue.StatusDead
	require.NoError(t, s.InsertItem(ctx, dead))

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[queue.StatusPending])
	assert.Equal(t, 1, counts[queue.StatusDead])
	assert.Equal(t, 0, counts[queue.StatusInFlight])
}

func TestUpdateItemPersistsBookkeeping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	item := queue.NewItem("a", queue.OperationUpdate, queue.Payload{}, queue.PriorityMedium, now)
	require.NoError(t, s.InsertItem(ctx, item))

	attempt := now.Add(time.Minute)
	item.Attempts = 2
	item.Status = queue.StatusDead
	item.LastAttemptAt = &attempt
	item.LastError = "server rejected payload"
	require.NoError(t, s.UpdateItem(ctx, item))

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, queue.StatusDead, got.Status)
	require.NotNil(t, got.LastAttemptAt)
	assert.True(t, got.LastAttemptAt.Equal(attempt))
	assert.Equal(t, "server rejected payload", got.LastError)
}
