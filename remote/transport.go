package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// Transport performs one request against the reputation service and returns
// the raw response body.
type Transport interface {
	Do(ctx context.Context, method, path string, header http.Header, body []byte) ([]byte, error)
}

// HTTPTransport is the net/http Transport. Every request carries a timeout;
// hitting it yields a retryable NetworkError.
type HTTPTransport struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPTransport(endpoint string, timeout time.Duration) (*HTTPTransport, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", endpoint)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		base:   u,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (t *HTTPTransport) Do(ctx context.Context, method, path string, header http.Header, body []byte) ([]byte, error) {
	op := method + " " + path
	req, err := http.NewRequestWithContext(ctx, method, t.base.String()+path, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// connection refused, DNS, TLS and timeouts may all clear up later
		return nil, &NetworkError{Op: op, Retryable: !errors.Is(err, context.Canceled), Err: err}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Retryable: true, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status (body: %s)", truncate(respBytes, 200)),
		}
	}
	return respBytes, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
