// Package sync drains the durable queue against the remote service, applying
// retry and backoff, and reports progress.
package sync

import (
	"context"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/connectivity"
	"fieldsync/internal/domain/queue"
	"fieldsync/internal/infrastructure/remote"
	"fieldsync/internal/infrastructure/storage"
)

// ConnectivityGate is the engine's view of the connectivity monitor. A false
// CanSyncCritical is treated as offline even when the OS reports a reachable
// network.
type ConnectivityGate interface {
	CanSyncCritical(ctx context.Context) bool
	Subscribe() (<-chan connectivity.Class, func())
}

// Config tunes the engine.
type Config struct {
	BatchSize      int
	SyncInterval   time.Duration
	RequestTimeout time.Duration
}

// Engine is the background reconciliation process. At most one pass is
// active at a time; a trigger arriving mid-pass schedules exactly one
// follow-up pass.
type Engine struct {
	queue  *queue.Queue
	remote remote.Service
	store  storage.DurableStore
	gate   ConnectivityGate
	cfg    Config
	log    *slog.Logger

	mu         gosync.Mutex
	running    bool
	rerun      bool
	progress   Progress
	lastResult *RunResult

	loopCancel context.CancelFunc
	wg         gosync.WaitGroup
}

// NewEngine creates a stopped engine.
func NewEngine(q *queue.Queue, svc remote.Service, store storage.DurableStore,
	gate ConnectivityGate, cfg Config, log *slog.Logger) *Engine {
	return &Engine{
		queue:  q,
		remote: svc,
		store:  store,
		gate:   gate,
		cfg:    cfg,
		log:    log,
	}
}

// Start launches the trigger loop: the interval timer and the connectivity
// subscription both funnel into one serialized handler. Idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.loopCancel != nil {
		e.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.loopCancel = cancel
	e.mu.Unlock()

	changes, unsubscribe := e.gate.Subscribe()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unsubscribe()

		ticker := time.NewTicker(e.cfg.SyncInterval)
		defer ticker.Stop()

		// Items queued by a previous process should not wait for the first
		// interval tick.
		e.trigger(loopCtx, "startup")

		for {
			select {
			case <-loopCtx.Done():
				return
			case class, ok := <-changes:
				if !ok {
					return
				}
				if class >= connectivity.ClassWeak {
					e.trigger(loopCtx, "connectivity")
				}
			case <-ticker.C:
				e.trigger(loopCtx, "interval")
			}
		}
	}()
}

// Stop halts the trigger loop. In-flight dispatches are abandoned on a
// best-effort basis; orphaned items are recovered on next initialize.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.loopCancel
	e.loopCancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		e.wg.Wait()
	}
}

func (e *Engine) trigger(ctx context.Context, source string) {
	if !e.gate.CanSyncCritical(ctx) {
		return
	}
	if _, err := e.Run(ctx); err != nil {
		e.log.Debug("sync trigger skipped", "source", source, "reason", err)
	}
}

// Run executes a sync pass. If a pass is already running it schedules a
// single follow-up and returns ErrPassInProgress; if sync-critical traffic
// is not allowed it returns ErrOffline. The returned result is that of the
// final pass executed (follow-ups included).
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	e.mu.Lock()
	if e.running {
		// Never more than one queued follow-up.
		e.rerun = true
		e.mu.Unlock()
		return nil, ErrPassInProgress
	}
	e.running = true
	e.rerun = false
	e.mu.Unlock()

	var result *RunResult
	var err error
	for {
		if !e.gate.CanSyncCritical(ctx) {
			err = ErrOffline
		} else {
			result = e.pass(ctx)
			err = nil
		}

		e.mu.Lock()
		if e.rerun && err == nil && ctx.Err() == nil {
			e.rerun = false
			e.mu.Unlock()
			continue
		}
		e.rerun = false
		e.running = false
		if result != nil {
			e.lastResult = result
		}
		e.progress = Progress{}
		e.mu.Unlock()
		return result, err
	}
}

// pass selects one batch and dispatches it sequentially in the order
// computed at selection time. A higher-priority item arriving mid-pass waits
// for the next pass.
func (e *Engine) pass(ctx context.Context) *RunResult {
	started := time.Now()
	result := &RunResult{StartedAt: started}

	batch, err := e.queue.SelectBatch(ctx, started, e.cfg.BatchSize)
	if err != nil {
		e.log.Error("failed to select sync batch", "error", err)
		result.Duration = time.Since(started)
		return result
	}

	e.setProgress(Progress{IsRunning: true, Total: len(batch)})

	for i, item := range batch {
		if ctx.Err() != nil {
			// Abandoned mid-pass: remaining in-flight items are recovered
			// by the next initialize.
			break
		}
		e.dispatch(ctx, item, result)
		e.setProgress(Progress{
			IsRunning:       true,
			Processed:       i + 1,
			Total:           len(batch),
			ProgressPercent: float64(i+1) / float64(len(batch)) * 100,
		})
	}

	result.Duration = time.Since(started)
	e.log.Info("sync pass finished",
		"synced", result.SyncedCount,
		"failed", result.FailedCount,
		"dead", result.DeadCount,
		"duration_ms", result.DurationMs(),
	)
	return result
}

func (e *Engine) dispatch(ctx context.Context, item *queue.Item, result *RunResult) {
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	_, err := e.remote.Execute(reqCtx, remote.Request{
		ResourceType:   item.EntityType,
		Operation:      string(item.Operation),
		IdempotencyKey: item.ID,
		Payload:        item.Payload.Body,
	})
	if err == nil {
		if cerr := e.queue.Complete(ctx, item.ID); cerr != nil {
			e.log.Error("failed to remove synced item", "id", item.ID, "error", cerr)
			result.FailedCount++
			return
		}
		e.invalidateCache(ctx, item.EntityType)
		result.SyncedCount++
		return
	}

	transient := remote.IsTransient(err)
	if ferr := e.queue.Fail(ctx, item, err, transient, time.Now()); ferr != nil {
		e.log.Error("failed to record dispatch failure", "id", item.ID, "error", ferr)
	}
	if item.Status == queue.StatusDead {
		result.DeadCount++
	} else {
		result.FailedCount++
	}
}

// invalidateCache drops cached reads that depend on the entity just written,
// so subsequent reads are not served stale.
func (e *Engine) invalidateCache(ctx context.Context, entityType string) {
	if _, err := e.store.RemoveByPrefix(ctx, storage.NamespaceCache, entityType+"/"); err != nil {
		e.log.Warn("failed to invalidate cache", "entity", entityType, "error", err)
	}
}

func (e *Engine) setProgress(p Progress) {
	e.mu.Lock()
	e.progress = p
	e.mu.Unlock()
}

// Progress returns a snapshot of the running pass, or a zero Progress when
// idle.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// LastResult returns the most recent completed pass result, or nil.
func (e *Engine) LastResult() *RunResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResult
}
