package describe

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoAPIKey            = errors.New("describe: API key required")
	ErrNoModel             = errors.New("describe: model required")
	ErrEmptyImage          = errors.New("describe: empty image")
	ErrEmptyResponse       = errors.New("describe: empty response")
	ErrNotInitialized      = errors.New("describe: service not initialized")
	ErrProviderUnavailable = errors.New("describe: provider unavailable")
	ErrAllProvidersFailed  = errors.New("describe: all providers failed")
)

// APIError is an HTTP-level refusal from a vision model.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Provider   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("describe [%s]: API error %d", e.Provider, e.StatusCode)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	return msg + ": " + e.Message
}

// IsAuthError reports a rejected or unauthorised key. The user is told to
// check their settings when this happens.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// IsRetryable is true for rate limits and 5xx answers.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.StatusCode >= 500
}

// ProviderError names the provider an error came from.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return "describe [" + e.Provider + "]: " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError holds the failure of each provider tried, in order. errors.As
// searches all of them, so an auth failure from the first provider is still
// found after the fallback also fails.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	n := len(e.Errors)
	if n == 0 {
		return "describe chain: no errors recorded"
	}
	if n == 1 {
		return "describe chain: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("describe chain: all %d providers failed, last error: %v", n, e.Errors[n-1])
}

func (e *ChainError) Unwrap() []error      { return e.Errors }
func (e *ChainError) Is(target error) bool { return target == ErrAllProvidersFailed }
