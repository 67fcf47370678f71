package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxDrain bounds how much of a probe response body is read before closing.
const maxDrain = 64 << 10

type Result struct {
	OK         bool
	StatusCode int
	Reason     string
	Elapsed    time.Duration
}

// Prober performs a single health probe. It must honour ctx and give up once
// timeout elapses.
type Prober interface {
	Probe(ctx context.Context, endpoint *url.URL, path string, timeout time.Duration) Result
}

// HTTPProber issues GET requests and treats any 2xx or 3xx answer as healthy.
// Redirects are not followed.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber wraps client. A nil client gets a default one that does not
// follow redirects.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &HTTPProber{client: client}
}

func (p *HTTPProber) Probe(ctx context.Context, endpoint *url.URL, path string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthURL := endpoint.ResolveReference(&url.URL{Path: path})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), http.NoBody)
	if err != nil {
		return Result{Reason: err.Error()}
	}

	start := time.Now()
	res, err := p.client.Do(req)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		return Result{Reason: reason, Elapsed: time.Since(start)}
	}
	defer res.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxDrain))
	elapsed := time.Since(start)

	if res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusBadRequest {
		return Result{OK: true, StatusCode: res.StatusCode, Elapsed: elapsed}
	}

	return Result{
		StatusCode: res.StatusCode,
		Reason:     fmt.Sprintf("HTTP %d", res.StatusCode),
		Elapsed:    elapsed,
	}
}
