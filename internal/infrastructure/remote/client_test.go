package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"fieldsync/internal/infrastructure/remote"
	"fieldsync/internal/infrastructure/remote/remotetest"
)

func newTestClient(t *testing.T) (*remote.Client, *remotetest.Server) {
	t.Helper()
	srv := remotetest.New()
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return remote.NewClient(srv.URL, 5*time.Second, log), srv
}

func TestExecuteSuccess(t *testing.T) {
	client, srv := newTestClient(t)

	resp, err := client.Execute(context.Background(), remote.Request{
		ResourceType:   "reports",
		Operation:      "create",
		IdempotencyKey: "key-1",
		Payload:        json.RawMessage(`{"siteId":"42"}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"applied"}`, string(resp.Body))

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "reports", calls[0].ResourceType)
	assert.Equal(t, "create", calls[0].Operation)
	assert.Equal(t, "key-1", calls[0].IdempotencyKey)
	assert.JSONEq(t, `{"siteId":"42"}`, string(calls[0].Payload))
	assert.True(t, srv.Applied("key-1"))
}

func TestExecuteDuplicateKeyNotReapplied(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()

	req := remote.Request{ResourceType: "reports", Operation: "create", IdempotencyKey: "key-1"}

	_, err := client.Execute(ctx, req)
	require.NoError(t, err)
	require.True(t, srv.Applied("key-1"))

	resp, err := client.Execute(ctx, req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"duplicate"}`, string(resp.Body))
	assert.Len(t, srv.Calls(), 2, "the retry reaches the backend but is not applied twice")
}

func TestExecuteClassifiesServerErrors(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		transient bool
	}{
		{"bad request", 400, false},
		{"conflict", 409, false},
		{"rate limited", 429, true},
		{"server error", 500, true},
		{"bad gateway", 502, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(t)
			srv.FailNext(tt.code)

			_, err := client.Execute(context.Background(), remote.Request{
				ResourceType: "reports", Operation: "create", IdempotencyKey: "k",
			})
			require.Error(t, err)

			var reqErr *remote.RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, tt.code, reqErr.Code)
			assert.Equal(t, "injected failure", reqErr.Message)
			assert.Equal(t, tt.transient, remote.IsTransient(err))
		})
	}
}

func TestExecuteConnectionRefusedIsTransient(t *testing.T) {
	// Reserve a port, then close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := remote.NewClient("http://"+addr, time.Second, log)

	_, err = client.Execute(context.Background(), remote.Request{
		ResourceType: "reports", Operation: "create", IdempotencyKey: "k",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrRequestTransient)
	assert.True(t, remote.IsTransient(err))
}

func TestFetch(t *testing.T) {
	client, srv := newTestClient(t)
	srv.SetValue("sites", "42", []byte(`{"name":"north ridge"}`))

	value, err := client.Fetch(context.Background(), "sites", "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"north ridge"}`, string(value))
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Fetch(context.Background(), "sites", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrRequestPermanent)
	assert.False(t, remote.IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, remote.IsTransient(nil))
	assert.True(t, remote.IsTransient(errors.New("connection reset")))
	assert.True(t, remote.IsTransient(&remote.RequestError{Code: 503}))
	assert.True(t, remote.IsTransient(&remote.RequestError{Code: 429}))
	assert.False(t, remote.IsTransient(&remote.RequestError{Code: 404}))
	assert.False(t, remote.IsTransient(&remote.RequestError{Code: 422}))
}

func TestHealthURL(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := remote.NewClient("http://example.test", time.Second, log)
	assert.Equal(t, "http://example.test/api/v1/health", client.HealthURL())
}
