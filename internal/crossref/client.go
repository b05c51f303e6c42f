package crossref

import (
	"context"
	"encoding/json"
	"errors"
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
	// BaseURL is the Crossref REST API base URL.
	BaseURL = "https://api.crossref.org"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// RateLimit keeps well under the public pool's 50 requests per second.
	RateLimit = 10.0

	// DefaultRows is the number of search hits checked per query.
	DefaultRows = 2

	// MaxAttempts bounds how often a failing request is sent.
	MaxAttempts = 2

	userAgent = "citeparse/1.0"
)

// Client is a rate-limited HTTP client for the Crossref REST API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	mailto     string
	backoff    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMailto identifies the caller to Crossref's polite pool.
func WithMailto(addr string) ClientOption {
	return func(c *Client) {
		c.mailto = addr
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

// NewClient creates a new Crossref client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		backoff:    time.Second,
	}

	if addr := os.Getenv("CROSSREF_MAILTO"); addr != "" {
		c.mailto = addr
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
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
			logger.Debug("retrying crossref request", "path", path, "attempt", attempt, "error", lastErr)
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

	if params == nil {
		params = url.Values{}
	}
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
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

// ByDOI fetches the work registered under doi.
func (c *Client) ByDOI(ctx context.Context, doi string) (*Work, error) {
	doi = strings.Trim(doi, " ,.;)]}>")
	if doi == "" {
		return nil, ErrNotFound
	}

	body, err := c.get(ctx, "/works/"+url.PathEscape(doi), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.DOI = doi
		}
		return nil, err
	}

	var resp workResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing work: %v", ErrInvalidResponse, err)
	}
	if resp.Message.DOI == "" {
		return nil, ErrNotFound
	}
	return &resp.Message, nil
}

// Search runs a bibliographic query, optionally narrowed by author, and
// returns up to rows works.
func (c *Client) Search(ctx context.Context, bibliographic, author string, rows int) ([]Work, error) {
	if strings.TrimSpace(bibliographic) == "" {
		return nil, nil
	}
	if rows <= 0 {
		rows = DefaultRows
	}

	params := url.Values{}
	params.Set("query.bibliographic", bibliographic)
	params.Set("rows", strconv.Itoa(rows))
	if author != "" {
		params.Set("query.author", author)
	}

	body, err := c.get(ctx, "/works", params)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
	}
	return resp.Message.Items, nil
}
