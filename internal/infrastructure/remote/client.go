// Package remote is the HTTP client for the synchronization backend. The
// backend accepts logical (resourceType, operation, idempotencyKey, payload)
// calls and returns a result or a classified failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/exp/slog"
)

// Request is one logical remote call.
type Request struct {
	ResourceType   string          `json:"resource_type"`
	Operation      string          `json:"operation"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
}

// Response carries the body of a successful call.
type Response struct {
	Body json.RawMessage
}

// Service is the remote collaborator contract the engine dispatches against.
type Service interface {
	// Execute submits a write operation. Failures are classified via
	// IsTransient.
	Execute(ctx context.Context, req Request) (*Response, error)

	// Fetch reads the current server-side value of a resource.
	Fetch(ctx context.Context, resourceType, key string) ([]byte, error)
}

// Client implements Service over HTTP.
type Client struct {
	client    *http.Client
	baseURL   string
	log       *slog.Logger
	userAgent string
}

// NewClient creates a Client against baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
		baseURL:   baseURL,
		log:       log,
		userAgent: "fieldsync/1.0",
	}
}

// HealthURL returns the endpoint used by the connectivity probe.
func (c *Client) HealthURL() string {
	return c.baseURL + "/api/v1/health"
}

// Execute submits one write keyed by the operation's idempotency id, so a
// retried call that already succeeded server-side does not double-apply.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	path := fmt.Sprintf("/api/v1/resources/%s/%s", req.ResourceType, req.Operation)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	httpReq.Header.Set("User-Agent", c.userAgent)

	c.log.Debug("dispatching remote call",
		"resource", req.ResourceType,
		"operation", req.Operation,
		"idempotency_key", req.IdempotencyKey,
	)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestTransient, err)
	}
	return c.parseResponse(resp)
}

// Fetch reads a resource value.
func (c *Client) Fetch(ctx context.Context, resourceType, key string) ([]byte, error) {
	path := fmt.Sprintf("/api/v1/resources/%s/%s", resourceType, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestTransient, err)
	}
	parsed, err := c.parseResponse(resp)
	if err != nil {
		return nil, err
	}
	return parsed.Body, nil
}

func (c *Client) parseResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrRequestTransient, err)
	}

	if resp.StatusCode >= 400 {
		reqErr := &RequestError{Code: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &errBody); err == nil {
			reqErr.Message = errBody.Error
		}
		return nil, reqErr
	}

	return &Response{Body: body}, nil
}
