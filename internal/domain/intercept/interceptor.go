// Package intercept is the single entry point the application calls for
// reads and writes. Per endpoint it decides whether to hit the network,
// serve from cache, or enqueue for later.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/queue"
	"fieldsync/internal/infrastructure/remote"
	"fieldsync/internal/infrastructure/storage"
)

// Endpoint configures one logical remote endpoint.
type Endpoint struct {
	Name                  string
	EntityType            string
	CacheTTLSeconds       int64
	Priority              queue.Priority
	AllowOfflineExecution bool
}

// ReadResult is the outcome of a read.
type ReadResult struct {
	Value     []byte
	FromCache bool
	// Stale marks a cached value served past its TTL under the offline read
	// policy.
	Stale bool
}

// WriteResult is the outcome of a write. Pending distinguishes "queued
// locally" from "confirmed by server".
type WriteResult struct {
	Value   []byte
	Pending bool
	QueueID string
}

// Gate is the interceptor's view of the connectivity monitor.
type Gate interface {
	CanSyncCritical(ctx context.Context) bool
}

// Interceptor routes reads and writes according to connectivity and endpoint
// policy. It never persists directly; everything goes through the store and
// the queue.
type Interceptor struct {
	endpoints map[string]Endpoint
	store     storage.DurableStore
	queue     *queue.Queue
	remote    remote.Service
	gate      Gate
	log       *slog.Logger
}

// New creates an Interceptor with the given endpoint registry.
func New(endpoints []Endpoint, store storage.DurableStore, q *queue.Queue,
	svc remote.Service, gate Gate, log *slog.Logger) *Interceptor {
	registry := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		registry[ep.Name] = ep
	}
	return &Interceptor{
		endpoints: registry,
		store:     store,
		queue:     q,
		remote:    svc,
		gate:      gate,
		log:       log,
	}
}

// Register adds or replaces an endpoint configuration.
func (i *Interceptor) Register(ep Endpoint) {
	i.endpoints[ep.Name] = ep
}

// Read serves a value for (endpoint, key). Online with a stale or absent
// cache it refreshes from the remote; on remote failure it falls back to the
// cached value even if stale. Offline it serves whatever is cached,
// regardless of staleness.
func (i *Interceptor) Read(ctx context.Context, endpoint, key string) (*ReadResult, error) {
	ep, ok := i.endpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	cacheKey := ep.EntityType + "/" + key

	if !i.gate.CanSyncCritical(ctx) {
		return i.readFromCache(ctx, cacheKey)
	}

	if value, err := i.store.GetIfFresh(ctx, storage.NamespaceCache, cacheKey); err == nil {
		return &ReadResult{Value: value, FromCache: true}, nil
	}

	value, err := i.remote.Fetch(ctx, ep.EntityType, key)
	if err != nil {
		i.log.Debug("remote read failed, falling back to cache",
			"endpoint", endpoint, "key", key, "error", err)
		return i.readFromCache(ctx, cacheKey)
	}

	if err := i.store.SetWithTTL(ctx, storage.NamespaceCache, cacheKey, value, ep.CacheTTLSeconds); err != nil {
		// The fresh value is still good; the caller just loses the cache.
		i.log.Warn("failed to cache read result", "endpoint", endpoint, "key", key, "error", err)
	}
	return &ReadResult{Value: value}, nil
}

func (i *Interceptor) readFromCache(ctx context.Context, cacheKey string) (*ReadResult, error) {
	if value, err := i.store.GetIfFresh(ctx, storage.NamespaceCache, cacheKey); err == nil {
		return &ReadResult{Value: value, FromCache: true}, nil
	}
	value, err := i.store.Get(ctx, storage.NamespaceCache, cacheKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoCacheAvailable
		}
		return nil, err
	}
	return &ReadResult{Value: value, FromCache: true, Stale: true}, nil
}

// Write submits a state-changing operation. Online it calls the remote
// immediately, queueing on transient failure; offline it queues directly
// when the endpoint allows offline execution.
func (i *Interceptor) Write(ctx context.Context, endpoint string, op queue.Operation, payload queue.Payload) (*WriteResult, error) {
	ep, ok := i.endpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}

	// The item is created up front so the immediate attempt and a later
	// replay share one idempotency key.
	item := queue.NewItem(ep.EntityType, op, payload, ep.Priority, time.Now())

	if !i.gate.CanSyncCritical(ctx) {
		if !ep.AllowOfflineExecution {
			return nil, ErrOfflineNotSupported
		}
		return i.enqueue(ctx, item)
	}

	resp, err := i.remote.Execute(ctx, remote.Request{
		ResourceType:   item.EntityType,
		Operation:      string(item.Operation),
		IdempotencyKey: item.ID,
		Payload:        item.Payload.Body,
	})
	if err == nil {
		if _, derr := i.store.RemoveByPrefix(ctx, storage.NamespaceCache, ep.EntityType+"/"); derr != nil {
			i.log.Warn("failed to invalidate cache after write", "endpoint", endpoint, "error", derr)
		}
		return &WriteResult{Value: resp.Body}, nil
	}

	if !remote.IsTransient(err) {
		return nil, err
	}

	i.log.Debug("immediate write failed, queueing for sync",
		"endpoint", endpoint, "id", item.ID, "error", err)
	return i.enqueue(ctx, item)
}

func (i *Interceptor) enqueue(ctx context.Context, item *queue.Item) (*WriteResult, error) {
	if err := i.queue.Enqueue(ctx, item); err != nil {
		return nil, err
	}
	return &WriteResult{Pending: true, QueueID: item.ID}, nil
}
