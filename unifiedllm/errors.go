package unifiedllm

import (
	"errors"
	"fmt"
)

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d)", e.Provider, e.Message, e.StatusCode)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type QuotaExceededError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// QuotaExhaustedError is returned by Retry when every attempt in the budget
// was rate limited. Cause holds the last provider error.
type QuotaExhaustedError struct {
	SDKError
	Attempts int
}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, cause error) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message, Cause: cause},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: pe.SDKError}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		return &ServerError{ProviderError: pe}
	default:
		return &pe
	}
}

// IsRateLimit reports whether err is a rate-limit-class failure, the only
// kind Retry will try again.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// IsQuotaExhausted reports whether err ended a retry budget.
func IsQuotaExhausted(err error) bool {
	var qe *QuotaExhaustedError
	return errors.As(err, &qe)
}
