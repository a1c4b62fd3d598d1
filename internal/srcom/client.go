package srcom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the public speedrun.com REST API.
	DefaultBaseURL = "https://www.speedrun.com/api/v1"
)

// Client is a speedrun.com API client with rate limiting. Read access
// requires no authentication.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Simple rate limiter
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMinInterval overrides the spacing between requests. Used in tests.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.minInterval = d }
}

// NewClient creates a new speedrun.com API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		// speedrun.com allows 100 requests/minute; 600ms keeps us under it
		minInterval: 600 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doRequest performs an HTTP request with rate limiting.
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	// Handle rate limiting (420/429): wait and retry once
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 420 {
		resp.Body.Close()
		time.Sleep(1 * time.Second)
		return c.httpClient.Do(req)
	}

	return resp, nil
}

// get performs a GET request and decodes the JSON response, classifying
// failures as transient or permanent.
func (c *Client) get(ctx context.Context, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &PermanentError{URL: url, Err: err}
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return &TransientError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 420:
		return &TransientError{Status: resp.StatusCode, URL: url}
	case resp.StatusCode >= 500:
		return &TransientError{Status: resp.StatusCode, URL: url}
	default:
		return &PermanentError{Status: resp.StatusCode, URL: url}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &PermanentError{URL: url, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return nil
}
