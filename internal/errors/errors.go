// Package errors defines the failure taxonomy of the history fetcher and the
// classification used to decide whether a failed exchange call may be retried.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	// Retryable error types
	ErrorTypeNetwork     ErrorType = "network"      // Network connectivity issues
	ErrorTypeTimeout     ErrorType = "timeout"      // Request timeout
	ErrorTypeRateLimit   ErrorType = "rate_limit"   // Exchange-side throttling
	ErrorTypeServerError ErrorType = "server_error" // HTTP 5xx errors

	// Non-retryable error types
	ErrorTypeBadRequest ErrorType = "bad_request" // HTTP 4xx errors (except rate limit)
	ErrorTypeValidation ErrorType = "validation"  // Request validation errors
	ErrorTypeAPI        ErrorType = "api"         // Exchange envelope reported failure
	ErrorTypeDecode     ErrorType = "decode"      // Malformed response payload
	ErrorTypeCanceled   ErrorType = "canceled"    // Caller gave up

	ErrorTypeUnknown ErrorType = "unknown"
)

// OKX envelope code returned when a client exceeds the endpoint budget.
const CodeRateLimited = "50011"

// Stage names the phase of a fetch that failed.
type Stage string

const (
	StageValidation Stage = "validation"
	StageTransport  Stage = "transport"
	StageAPI        Stage = "api"
	StageDecode     Stage = "decode"
)

// ValidationError represents a request validation failure with field context.
// It is always raised before any network access.
type ValidationError struct {
	Field   string // Field is the name of the input that failed validation
	Message string // Message explains the failure
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransportError is a non-success HTTP status or a network failure.
// Body carries the raw response so the exchange's own diagnosis reaches the caller.
type TransportError struct {
	URL        string
	StatusCode int // 0 when the request never produced a response
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request to %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is returned when the HTTP exchange succeeded but the OKX envelope
// carries a non-zero code.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("okx api error %s: %s", e.Code, e.Message)
}

// FetchError annotates a failure that happened while paginating with the
// parameters of the fetch.
type FetchError struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
	Stage    Stage
	Err      error
	// FetchID matches the fetch_id attribute on the fetch's log records.
	FetchID string
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s %s [%s, %s) failed at %s: %v",
		e.Symbol, e.Interval,
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339),
		e.Stage, e.Err)
	if e.FetchID != "" {
		msg += " (fetch_id " + e.FetchID + ")"
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Classify maps an error onto an ErrorType. A TransportError is classified by
// status or cause first, so an http.Client timeout stays a retryable timeout.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ErrorTypeValidation
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == CodeRateLimited {
			return ErrorTypeRateLimit
		}
		return ErrorTypeAPI
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		switch {
		case transportErr.StatusCode == http.StatusTooManyRequests:
			return ErrorTypeRateLimit
		case transportErr.StatusCode >= 500:
			return ErrorTypeServerError
		case transportErr.StatusCode >= 400:
			return ErrorTypeBadRequest
		case transportErr.StatusCode == 0:
			if isTimeoutError(transportErr.Err) {
				return ErrorTypeTimeout
			}
			return ErrorTypeNetwork
		}
	}

	// outside a TransportError a context error means the caller's context ended
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeCanceled
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && fetchErr.Stage == StageDecode {
		return ErrorTypeDecode
	}

	if isTimeoutError(err) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}

// IsRetryable reports whether another attempt of the same call may succeed.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// StageOf returns the stage recorded on a FetchError, or "" if err is not one.
func StageOf(err error) Stage {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Stage
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return StageValidation
	}
	return ""
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
