package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pscheid92/llmwatch/internal/domain"
	apperrors "github.com/pscheid92/llmwatch/internal/errors"
)

// DefaultTimeout bounds every outbound call so nothing suspends
// indefinitely on a dead network.
const DefaultTimeout = 5 * time.Second

// Client talks to the monitored proxy server and the identity service.
type Client struct {
	baseURL    string
	authURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	authToken string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthURL points identity calls at a separate service. Defaults to
// the monitored server's own /api/auth routes.
func WithAuthURL(authURL string) Option {
	return func(c *Client) { c.authURL = strings.TrimRight(authURL, "/") }
}

// New creates a client for the given monitored server base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.authURL == "" {
		c.authURL = c.baseURL
	}
	return c
}

// BaseURL returns the monitored server's base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAuthToken installs the bearer token sent on monitored-server calls.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// Stats fetches the aggregate request counters.
func (c *Client) Stats(ctx context.Context) (*domain.AggregateStats, error) {
	var stats domain.AggregateStats
	if err := c.getJSON(ctx, c.baseURL+"/api/stats", c.token(), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Queue fetches the current queued requests in server order.
func (c *Client) Queue(ctx context.Context) ([]domain.RequestRecord, error) {
	return c.getRecords(ctx, "/api/queue")
}

// Processing fetches the currently executing requests.
func (c *Client) Processing(ctx context.Context) ([]domain.RequestRecord, error) {
	return c.getRecords(ctx, "/api/processing")
}

// History fetches the bounded request history, most recent first.
func (c *Client) History(ctx context.Context) ([]domain.RequestRecord, error) {
	return c.getRecords(ctx, "/api/history")
}

// Services fetches the status of the backend services behind the proxy.
func (c *Client) Services(ctx context.Context) ([]domain.ServiceStatus, error) {
	var services []domain.ServiceStatus
	if err := c.getJSON(ctx, c.baseURL+"/api/services", c.token(), &services); err != nil {
		return nil, err
	}
	return services, nil
}

// Kill issues a cancellation command for the given request.
func (c *Client) Kill(ctx context.Context, requestID string) error {
	url := fmt.Sprintf("%s/api/kill/%s", c.baseURL, requestID)
	return c.doJSON(ctx, http.MethodPost, url, c.token(), nil, nil)
}

func (c *Client) getRecords(ctx context.Context, path string) ([]domain.RequestRecord, error) {
	var records []domain.RequestRecord
	if err := c.getJSON(ctx, c.baseURL+path, c.token(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) getJSON(ctx context.Context, url, bearer string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, bearer, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, url, bearer string, in, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.FromTransport(method+" "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return apperrors.FromStatus(method+" "+url, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Server("failed to decode response", resp.StatusCode)
	}
	return nil
}
