package s2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/citeparse/internal/logger"
)

const (
	// BaseURL is the Semantic Scholar Graph API base URL.
	BaseURL = "https://api.semanticscholar.org"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// RateLimit is the one request per second granted to API keys.
	RateLimit = 1.0

	// DefaultLimit is the number of search hits checked per query.
	DefaultLimit = 1

	// MaxAttempts bounds how often a failing request is sent.
	MaxAttempts = 2

	searchFields = "title,url,authors,year,venue,externalIds"
	userAgent    = "citeparse/1.0"
)

// Client is a rate-limited HTTP client for the Semantic Scholar Graph API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	backoff    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent in the x-api-key header.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithBackoff sets the pause before a retry.
func WithBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.backoff = d
	}
}

// NewClient creates a new Semantic Scholar client. The key defaults to
// S2_API_KEY.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		backoff:    2 * time.Second,
	}

	if key := os.Getenv("S2_API_KEY"); key != "" {
		c.apiKey = key
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// HasAPIKey reports whether requests will carry a key.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuthError, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}
	return nil
}

// get fetches path with params, retrying network failures, rate limiting
// and server errors.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			logger.Debug("retrying semantic scholar request", "path", path, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}
		body, err := c.do(ctx, path, params)
		if err == nil {
			return body, nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := checkHTTPErrors(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetworkError, err)
	}
	return body, nil
}

// Search runs a relevance search for query and returns up to limit papers.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Paper, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", searchFields)

	body, err := c.get(ctx, "/graph/v1/paper/search", params)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
	}
	return resp.Data, nil
}
