package app_test

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app"
	"fieldsync/internal/config"
	"fieldsync/internal/domain/connectivity"
	"fieldsync/internal/domain/intercept"
	"fieldsync/internal/domain/queue"
	"fieldsync/internal/infrastructure/remote/remotetest"
)

type switchableNet struct {
	mu        sync.Mutex
	reachable bool
}

func (n *switchableNet) Current(context.Context) (bool, connectivity.LinkType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reachable, connectivity.LinkWifi
}

func (n *switchableNet) set(reachable bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reachable = reachable
}

func testConfig(t *testing.T, remoteURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		RemoteBaseURL:             remoteURL,
		LogLevel:                  "debug",
		DataPath:                  filepath.Join(t.TempDir(), "fieldsync.db"),
		MaxRetries:                3,
		BaseDelayMs:               1,
		MaxDelayMs:                10,
		SyncIntervalMs:            3_600_000,
		BatchSize:                 25,
		StrongThresholdMbps:       5.0,
		WeakThresholdMbps:         0.5,
		ConnectionCheckIntervalMs: 20,
		ProbeEnabled:              false, // static wifi estimate classifies as strong
		ProbeTimeoutMs:            1000,
		RequestTimeoutMs:          5000,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func testEndpoints() []intercept.Endpoint {
	return []intercept.Endpoint{
		{
			Name:                  "submitReport",
			EntityType:            "reports",
			CacheTTLSeconds:       300,
			Priority:              queue.PriorityHigh,
			AllowOfflineExecution: true,
		},
		{
			Name:                  "listSites",
			EntityType:            "sites",
			CacheTTLSeconds:       300,
			Priority:              queue.PriorityMedium,
			AllowOfflineExecution: true,
		},
	}
}

func newTestApp(t *testing.T) (*app.App, *remotetest.Server, *switchableNet) {
	t.Helper()
	srv := remotetest.New()
	t.Cleanup(srv.Close)

	net := &switchableNet{reachable: true}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := app.New(testConfig(t, srv.URL), log,
		app.WithNetworkInfo(net),
		app.WithEndpoints(testEndpoints()),
	)
	require.NoError(t, a.Initialize(context.Background()))
	t.Cleanup(func() { a.Close() })
	return a, srv, net
}

func waitForClass(t *testing.T, a *app.App, want connectivity.Class) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.Monitor().Classification() == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestInitializeIsIdempotent(t *testing.T) {
	a, _, _ := newTestApp(t)
	assert.NoError(t, a.Initialize(context.Background()))
}

func TestOfflineWriteSyncsWhenConnectivityRestored(t *testing.T) {
	a, srv, net := newTestApp(t)
	ctx := context.Background()

	waitForClass(t, a, connectivity.ClassStrong)
	net.set(false)
	waitForClass(t, a, connectivity.ClassOffline)

	// Offline write: accepted optimistically and queued.
	res, err := a.Interceptor().Write(ctx, "submitReport", queue.OperationCreate, queue.Payload{
		Kind: "report",
		Body: json.RawMessage(`{"siteId":"42","notes":"pump leaking"}`),
	})
	require.NoError(t, err)
	assert.True(t, res.Pending)
	require.NotEmpty(t, res.QueueID)
	assert.Empty(t, srv.Calls(), "no network traffic while offline")

	status, err := a.SystemStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Queue.Pending)

	// Connectivity returns: the poll loop notices and a pass drains the queue
	// without any manual trigger.
	net.set(true)

	require.Eventually(t, func() bool {
		status, err := a.SystemStatus(ctx)
		return err == nil && status.Queue.Pending == 0 && status.Queue.Total == 0
	}, 3*time.Second, 10*time.Millisecond)

	assert.True(t, srv.Applied(res.QueueID), "the queued write reaches the backend with its original idempotency key")

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "reports", calls[0].ResourceType)
	assert.Equal(t, "create", calls[0].Operation)
}

func TestReadOnlineThenServedFromCacheOffline(t *testing.T) {
	a, srv, net := newTestApp(t)
	ctx := context.Background()

	waitForClass(t, a, connectivity.ClassStrong)
	srv.SetValue("sites", "list", []byte(`[{"id":"42","name":"north ridge"}]`))

	res, err := a.Interceptor().Read(ctx, "listSites", "list")
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	net.set(false)
	waitForClass(t, a, connectivity.ClassOffline)

	res, err = a.Interceptor().Read(ctx, "listSites", "list")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.JSONEq(t, `[{"id":"42","name":"north ridge"}]`, string(res.Value))
}

func TestSystemStatus(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	waitForClass(t, a, connectivity.ClassStrong)
	require.NoError(t, a.Drafts().Save(ctx, "form-1", json.RawMessage(`{}`)))

	status, err := a.SystemStatus(ctx)
	require.NoError(t, err)

	assert.True(t, status.Network.IsOnline)
	assert.Equal(t, "strong", status.Network.Classification)
	assert.Equal(t, "wifi", status.Network.Type)
	assert.Equal(t, 1, status.Storage.NamespaceCounts["drafts"])
	assert.Positive(t, status.Storage.SizeBytes)
	assert.Zero(t, status.Queue.Pending)
	assert.Zero(t, status.Cache.Entries)
}

func TestQueuedWritesSurviveRestart(t *testing.T) {
	srv := remotetest.New()
	t.Cleanup(srv.Close)

	net := &switchableNet{reachable: false}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	a := app.New(cfg, log, app.WithNetworkInfo(net), app.WithEndpoints(testEndpoints()))
	require.NoError(t, a.Initialize(ctx))

	res, err := a.Interceptor().Write(ctx, "submitReport", queue.OperationCreate, queue.Payload{
		Kind: "report",
		Body: json.RawMessage(`{"siteId":"7"}`),
	})
	require.NoError(t, err)
	require.True(t, res.Pending)
	require.NoError(t, a.Close())

	// A new process over the same database finds the queued item and syncs it
	// once connectivity exists.
	net.set(true)
	a = app.New(cfg, log, app.WithNetworkInfo(net), app.WithEndpoints(testEndpoints()))
	require.NoError(t, a.Initialize(ctx))
	t.Cleanup(func() { a.Close() })

	require.Eventually(t, func() bool {
		counts, err := a.Queue().Counts(ctx)
		return err == nil && counts[queue.StatusPending] == 0 && counts[queue.StatusInFlight] == 0
	}, 3*time.Second, 10*time.Millisecond)

	assert.True(t, srv.Applied(res.QueueID))
}

func TestReset(t *testing.T) {
	a, _, net := newTestApp(t)
	ctx := context.Background()

	waitForClass(t, a, connectivity.ClassStrong)
	net.set(false)
	waitForClass(t, a, connectivity.ClassOffline)

	_, err := a.Interceptor().Write(ctx, "submitReport", queue.OperationCreate, queue.Payload{Kind: "report"})
	require.NoError(t, err)
	require.NoError(t, a.Drafts().Save(ctx, "form-1", json.RawMessage(`{}`)))

	require.NoError(t, a.Reset(ctx))

	_, err = a.SystemStatus(ctx)
	assert.Error(t, err, "a reset app must be re-initialized before use")

	// Re-initializing finds an empty database.
	require.NoError(t, a.Initialize(ctx))
	status, err := a.SystemStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Queue.Total)
	assert.Zero(t, status.Storage.NamespaceCounts["drafts"])
}
