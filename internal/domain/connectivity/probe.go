package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProber measures throughput by fetching a small fixed resource and
// timing the transfer. The caller bounds it with a context timeout.
type HTTPProber struct {
	client *http.Client
	url    string
}

// NewHTTPProber targets url, typically the remote service health endpoint.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Probe fetches the target and derives megabits per second from bytes
// transferred over elapsed time.
func (p *HTTPProber) Probe(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	elapsed := time.Since(start)

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("%w: probe status %d", ErrNetworkUnavailable, resp.StatusCode)
	}
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}

	bits := float64(n+headerOverheadBytes) * 8
	return bits / elapsed.Seconds() / 1e6, nil
}

// headerOverheadBytes keeps tiny health responses from reading as a dead
// link: the TCP/TLS/HTTP exchange moves real bytes even when the body is a
// few characters.
const headerOverheadBytes = 512
