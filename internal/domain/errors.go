package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Provider failures carry one of the first three as their Kind.
var (
	ErrProvider       = errors.New("provider error")
	ErrAuth           = errors.New("provider authentication failed")
	ErrRateLimit      = errors.New("provider rate limited")
	ErrConfiguration  = errors.New("invalid provider configuration")
	ErrFatalIngestion = errors.New("all providers failed")
	ErrMalformedItem  = errors.New("malformed item")
)

// ProviderError describes a failed fetch against one provider.
type ProviderError struct {
	Provider   string
	Kind       error // ErrProvider, ErrAuth or ErrRateLimit
	StatusCode int
	RetryAfter time.Duration // only meaningful for ErrRateLimit
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewProviderError wraps a transport or service failure.
func NewProviderError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrProvider, StatusCode: statusCode, Err: err}
}

// NewAuthError wraps a credential rejection.
func NewAuthError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrAuth, StatusCode: statusCode, Err: err}
}

// NewRateLimitError wraps a throttling response. retryAfter may be zero.
func NewRateLimitError(provider string, retryAfter time.Duration, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrRateLimit, StatusCode: 429, RetryAfter: retryAfter, Err: err}
}

// ErrorKind returns a short label for logs, metrics and health output.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	default:
		return "provider"
	}
}
