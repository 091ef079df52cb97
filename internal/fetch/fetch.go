// Package fetch is the shared outbound HTTP client for remote layer data,
// upstream tiles and scraped pages. Every request waits on a token bucket so
// bulk operations cannot hammer a public endpoint.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent identifies the viewer to upstream servers.
const DefaultUserAgent = "grousemap/0.1 (+https://github.com/joeblew999/grousemap)"

// Config controls the client.
type Config struct {
	RequestsPerSec float64
	Burst          int
	Timeout        time.Duration
	UserAgent      string
	MaxBodyBytes   int64
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

// Client is a rate-limited HTTP client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
}

// New creates a client, filling zero config values with defaults.
func New(config Config) *Client {
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = 10
	}
	if config.Burst <= 0 {
		config.Burst = 4
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 256 << 20
	}

	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSec), config.Burst),
		config:     config,
	}
}

// Get fetches url and returns the body along with its Content-Type.
func (c *Client) Get(ctx context.Context, url string) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", url, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, _, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}
