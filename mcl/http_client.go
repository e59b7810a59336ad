package mcl

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout is the HTTP request timeout for map fetches.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of retry attempts for map fetches.
	DefaultMaxRetries = 3
	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond
	// maxResponseBytes caps the response body to keep a misbehaving map
	// server from exhausting memory.
	maxResponseBytes = 50 << 20
)

// FetchOption configures FetchMap behavior.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.timeout = d }
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) { c.maxRetries = n }
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) { c.client = client }
}

// FetchMap fetches an occupancy grid from a map server URL, for deployments
// where the map is served over HTTP rather than published on MQTT.
// Transient failures are retried with exponential backoff.
func FetchMap(ctx context.Context, mapURL string, opts ...FetchOption) (*OccupancyGrid, error) {
	if mapURL == "" {
		return nil, fmt.Errorf("fetch map: URL is empty")
	}

	cfg := fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(cfg.baseBackoff) * math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch map: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		grid, err := fetchMapOnce(ctx, client, mapURL)
		if err == nil {
			return grid, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch map: all %d attempts failed: %w", cfg.maxRetries+1, lastErr)
}

func fetchMapOnce(ctx context.Context, client *http.Client, mapURL string) (*OccupancyGrid, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", mapURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("map server returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	jsonBytes, err := DecodePayload(body)
	if err != nil {
		return nil, err
	}
	return ParseGridJSON(jsonBytes)
}
