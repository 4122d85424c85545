// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// GeocodingError represents a provider failure with a classified cause.
type GeocodingError struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType classifies geocoding failures.
type ErrorType int

const (
	// ErrorTypeUnknown unclassified failure.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit provider asked us to slow down.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded daily quota exhausted or key rejected.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout request timed out.
	ErrorTypeTimeout
	// ErrorTypeNotFound no match for the query.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest provider rejected the query.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError connectivity failure or 5xx.
	ErrorTypeNetworkError
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeQuotaExceeded:
		return "quota_exceeded"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeInvalidRequest:
		return "invalid_request"
	case ErrorTypeNetworkError:
		return "network"
	default:
		return "unknown"
	}
}

func (e *GeocodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// ErrNotFound is wrapped by providers when a query has no match.
var ErrNotFound = &GeocodingError{Type: ErrorTypeNotFound, Message: "no results found"}

// Is makes errors.Is(err, ErrNotFound) match any not-found GeocodingError.
func (e *GeocodingError) Is(target error) bool {
	t, ok := target.(*GeocodingError)
	if !ok {
		return false
	}

	return t == ErrNotFound && e.Type == ErrorTypeNotFound
}

func typeOf(err error) (ErrorType, bool) {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type, true
	}

	return ErrorTypeUnknown, false
}

// IsRateLimitError reports whether err is caused by rate limiting.
func IsRateLimitError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeRateLimit
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsQuotaExceededError reports whether err is caused by an exhausted quota.
func IsQuotaExceededError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeQuotaExceeded
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "over_query_limit") ||
		strings.Contains(errStr, "quota exceeded")
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeTimeout
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// IsTransient reports whether retrying the same query may succeed.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if t, ok := typeOf(err); ok {
		switch t {
		case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeNetworkError:
			return true
		default:
			return false
		}
	}

	return IsTimeoutError(err) || IsRateLimitError(err)
}

// ClassifyHTTPError maps a provider HTTP status to a GeocodingError.
func ClassifyHTTPError(statusCode int, body string) *GeocodingError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &GeocodingError{
			Type:    ErrorTypeRateLimit,
			Message: "rate limit reached",
		}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &GeocodingError{
			Type:    ErrorTypeQuotaExceeded,
			Message: "quota exceeded or access denied",
		}
	case statusCode == http.StatusBadRequest:
		return &GeocodingError{
			Type:    ErrorTypeInvalidRequest,
			Message: "invalid request",
			Err:     bodyError(body),
		}
	case statusCode == http.StatusNotFound:
		return &GeocodingError{
			Type:    ErrorTypeNotFound,
			Message: "location not found",
		}
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return &GeocodingError{
			Type:    ErrorTypeTimeout,
			Message: fmt.Sprintf("provider timed out (status %d)", statusCode),
		}
	case statusCode >= 500:
		return &GeocodingError{
			Type:    ErrorTypeNetworkError,
			Message: fmt.Sprintf("service unavailable (status %d)", statusCode),
		}
	default:
		return &GeocodingError{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("HTTP error %d", statusCode),
		}
	}
}

func bodyError(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	if len(body) > 200 {
		body = body[:200] + "…"
	}

	return errors.New(body)
}

// ClassifyTransportError wraps an error returned by http.Client.Do.
func ClassifyTransportError(err error) *GeocodingError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &GeocodingError{Type: ErrorTypeTimeout, Message: "geocoding request timed out", Err: err}
	}

	return &GeocodingError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
}
