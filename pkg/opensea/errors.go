package opensea

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when a page fetch used up its retry budget.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a
	// request or a retry backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrDecode is returned when a successful response body is not valid JSON.
	ErrDecode = errors.New("decode response body")

	// ErrInvalidEventType is returned for an event type outside sale, offer, listing.
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrInvalidCollection is returned for an empty collection slug.
	ErrInvalidCollection = errors.New("collection slug is required")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents non-retryable HTTP statuses (4xx other than 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport failures (DNS, TLS, timeout, reset).
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is a classified failure of a single OpenSea request.
type APIError struct {
	// StatusCode is zero for transport failures.
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// RetryAfter is the server-requested delay from a 429 Retry-After header.
	// Zero when absent or not a positive integer.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("OpenSea %s error: %s: %v", e.ErrorClass, e.Message, e.Err)
		}
		return fmt.Sprintf("OpenSea %s error: %s", e.ErrorClass, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("OpenSea %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("OpenSea %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *APIError) Retryable() bool {
	return shouldRetry(e.ErrorClass)
}

// classifyStatus maps an HTTP status to an error class.
// Returns "" for 2xx statuses.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ""
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx other than 429 will not succeed on a retry
		return false
	}
}

// IsRetryable reports whether err is a classified, retryable request failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
