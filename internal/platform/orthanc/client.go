// Package orthanc is a minimal client for the Orthanc DICOM archive REST API.
package orthanc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// RetryBaseDelay is the first backoff step. Tests override it to avoid real
// sleeps.
var RetryBaseDelay = 500 * time.Millisecond

const (
	defaultMaxRetries = 3
	defaultTimeout    = 10 * time.Second
	maxBodySize       = 64 << 20
)

// Config holds connection settings for one archive.
type Config struct {
	BaseURL           string
	Username          string
	Password          string
	Timeout           time.Duration
	RequestsPerSecond float64
	// MaxRetries bounds retries of 429/502/503/504 responses. Zero selects
	// the default of 3.
	MaxRetries int
}

// StatusError is returned for a non-2xx response that is not retried, or
// still failing after the last retry.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("orthanc %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	baseURL    string
	username   string
	password   string
	maxRetries int
	limiter    *rate.Limiter
	http       *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		maxRetries: retries,
		limiter:    rate.NewLimiter(limit, 1),
		http:       &http.Client{Timeout: timeout},
	}
}

// ListInstances returns the IDs of every instance stored in the archive, in
// the archive's order.
func (c *Client) ListInstances(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/instances")
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("decode instance list: %w", err)
	}
	return ids, nil
}

// InstanceTags returns the raw /instances/{id}/tags document.
func (c *Client) InstanceTags(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("instance id is empty")
	}
	return c.get(ctx, "/instances/"+url.PathEscape(id)+"/tags")
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("orthanc GET %s: %w", path, err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response of GET %s: %w", path, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}
		if !retryable(resp.StatusCode) || attempt >= c.maxRetries {
			return nil, &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode, Body: truncate(string(body), 256)}
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
