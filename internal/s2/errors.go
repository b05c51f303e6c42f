package s2

import (
	"errors"
	"fmt"
)

// Common errors returned by the Semantic Scholar client.
var (
	// ErrNotFound indicates no paper was found.
	ErrNotFound = errors.New("not found in Semantic Scholar")

	// ErrAuthError indicates the API key was rejected.
	ErrAuthError = errors.New("Semantic Scholar authentication error")

	// ErrRateLimited indicates the rate limit has been exceeded.
	ErrRateLimited = errors.New("Semantic Scholar rate limit exceeded")

	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = errors.New("network error communicating with Semantic Scholar")

	// ErrInvalidResponse indicates an unexpected API response.
	ErrInvalidResponse = errors.New("invalid response from Semantic Scholar")
)

// APIError represents an HTTP error from the Semantic Scholar Graph API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Semantic Scholar API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error indicates no paper was found.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// retryable reports whether a request that failed with err may succeed if
// sent again. Rejected keys never do.
func retryable(err error) bool {
	if errors.Is(err, ErrNetworkError) || IsRateLimited(err) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 500
}
