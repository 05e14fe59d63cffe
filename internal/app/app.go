// Package app wires the sync engine components together and owns their
// lifecycle. One App is created at application start and torn down on
// explicit reset or process exit.
package app

import (
	"context"
	"fmt"
	gosync "sync"

	"golang.org/x/exp/slog"

	"fieldsync/internal/config"
	"fieldsync/internal/domain/connectivity"
	"fieldsync/internal/domain/draft"
	"fieldsync/internal/domain/intercept"
	"fieldsync/internal/domain/queue"
	syncengine "fieldsync/internal/domain/sync"
	"fieldsync/internal/infrastructure/remote"
	"fieldsync/internal/infrastructure/storage"
	"fieldsync/internal/infrastructure/storage/sqlite"
)

// Option customizes App construction, mainly for tests and for host
// applications that supply their own collaborators.
type Option func(*App)

// WithAuthorizer installs the sync-critical authorization policy.
func WithAuthorizer(auth connectivity.Authorizer) Option {
	return func(a *App) { a.auth = auth }
}

// WithNetworkInfo replaces the OS interface prober.
func WithNetworkInfo(info connectivity.NetworkInfo) Option {
	return func(a *App) { a.netInfo = info }
}

// WithRemote replaces the HTTP remote client.
func WithRemote(svc remote.Service) Option {
	return func(a *App) { a.remote = svc }
}

// WithEndpoints seeds the interceptor's endpoint registry.
func WithEndpoints(endpoints []intercept.Endpoint) Option {
	return func(a *App) { a.endpoints = endpoints }
}

// App is the process-wide orchestrator.
type App struct {
	cfg *config.Config
	log *slog.Logger

	auth      connectivity.Authorizer
	netInfo   connectivity.NetworkInfo
	remote    remote.Service
	endpoints []intercept.Endpoint

	mu          gosync.Mutex
	initialized bool

	store       storage.DurableStore
	queue       *queue.Queue
	monitor     *connectivity.Monitor
	engine      *syncengine.Engine
	interceptor *intercept.Interceptor
	drafts      *draft.Service
}

// New creates an App; call Initialize before use.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) *App {
	a := &App{
		cfg:     cfg,
		log:     log,
		auth:    connectivity.AllowAll{},
		netInfo: connectivity.InterfaceInfo{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize brings up the store, recovers the queue, starts the
// connectivity monitor and the engine's trigger loop. Calling it again while
// initialized is a no-op.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}

	store, err := sqlite.Open(a.cfg.DataPath, a.log)
	if err != nil {
		return fmt.Errorf("failed to open durable store: %w", err)
	}
	a.store = store

	a.queue = queue.New(store, queue.Config{
		MaxRetries: a.cfg.MaxRetries,
		BaseDelay:  a.cfg.BaseDelay(),
		MaxDelay:   a.cfg.MaxDelay(),
	}, a.log)

	// Dispatches abandoned by a previous process are returned to pending
	// before anything can run.
	if _, err := a.queue.ResetInFlight(ctx); err != nil {
		store.Close()
		a.store = nil
		return err
	}

	if a.remote == nil {
		a.remote = remote.NewClient(a.cfg.RemoteBaseURL, a.cfg.RequestTimeout(), a.log)
	}

	var prober connectivity.Prober
	if a.cfg.ProbeEnabled {
		probeURL := a.cfg.RemoteBaseURL + "/api/v1/health"
		if c, ok := a.remote.(*remote.Client); ok {
			probeURL = c.HealthURL()
		}
		prober = connectivity.NewHTTPProber(probeURL, a.cfg.ProbeTimeout())
	}

	a.monitor = connectivity.NewMonitor(a.netInfo, prober, a.auth, connectivity.Config{
		WeakThresholdMbps:   a.cfg.WeakThresholdMbps,
		StrongThresholdMbps: a.cfg.StrongThresholdMbps,
		PollInterval:        a.cfg.ConnectionCheckInterval(),
		ProbeEnabled:        a.cfg.ProbeEnabled,
		ProbeTimeout:        a.cfg.ProbeTimeout(),
	}, a.log)
	a.monitor.Start(ctx)

	a.engine = syncengine.NewEngine(a.queue, a.remote, a.store, a.monitor, syncengine.Config{
		BatchSize:      a.cfg.BatchSize,
		SyncInterval:   a.cfg.SyncInterval(),
		RequestTimeout: a.cfg.RequestTimeout(),
	}, a.log)
	a.engine.Start(ctx)

	a.interceptor = intercept.New(a.endpoints, a.store, a.queue, a.remote, a.monitor, a.log)
	a.drafts = draft.NewService(a.store)

	a.initialized = true
	a.log.Info("sync engine initialized", "data_path", a.cfg.DataPath)
	return nil
}

// SystemStatus aggregates connectivity, storage, queue and cache state.
func (a *App) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("not initialized")
	}

	sample := a.monitor.LastSample()
	class := a.monitor.Classification()

	counts, err := a.store.NamespaceCounts(ctx)
	if err != nil {
		return nil, err
	}
	size, err := a.store.SizeEstimate(ctx)
	if err != nil {
		return nil, err
	}
	queueCounts, err := a.queue.Counts(ctx)
	if err != nil {
		return nil, err
	}
	oldest, err := a.store.OldestEntryAge(ctx, storage.NamespaceCache)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range queueCounts {
		total += n
	}

	return &SystemStatus{
		Network: NetworkStatus{
			IsOnline:       sample.Reachable,
			Classification: class.String(),
			Type:           string(sample.Link),
		},
		Storage: StorageStatus{
			NamespaceCounts: counts,
			SizeBytes:       size,
		},
		Queue: QueueStatus{
			Pending: queueCounts[queue.StatusPending],
			Dead:    queueCounts[queue.StatusDead],
			Total:   total,
		},
		Cache: CacheStatus{
			Entries:           counts[storage.NamespaceCache],
			OldestEntryAgeSec: int64(oldest.Seconds()),
		},
	}, nil
}

// Reset cancels timers and subscriptions, clears every namespace and returns
// the App to its pre-initialize state.
func (a *App) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil
	}

	a.engine.Stop()
	a.monitor.Stop()

	// Teardown proceeds even when the clear fails: the components are
	// already stopped, and a half-torn-down App must not keep serving.
	clearErr := a.store.Clear(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close store during reset", "error", err)
	}
	a.teardownLocked()

	if clearErr != nil {
		return fmt.Errorf("failed to clear store: %w", clearErr)
	}
	a.log.Info("sync engine reset")
	return nil
}

// Close tears down without clearing persisted state.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil
	}

	a.engine.Stop()
	a.monitor.Stop()
	err := a.store.Close()
	a.teardownLocked()
	return err
}

func (a *App) teardownLocked() {
	a.store = nil
	a.queue = nil
	a.monitor = nil
	a.engine = nil
	a.interceptor = nil
	a.drafts = nil
	a.initialized = false
}

// Interceptor returns the read/write entry point.
func (a *App) Interceptor() *intercept.Interceptor { return a.interceptor }

// Drafts returns the draft service.
func (a *App) Drafts() *draft.Service { return a.drafts }

// Engine returns the sync engine.
func (a *App) Engine() *syncengine.Engine { return a.engine }

// Queue returns the durable queue.
func (a *App) Queue() *queue.Queue { return a.queue }

// Monitor returns the connectivity monitor.
func (a *App) Monitor() *connectivity.Monitor { return a.monitor }
