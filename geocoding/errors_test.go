// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type errorCheckTestCase struct {
	name string
	err  error
	want bool
}

func runErrorCheckTest(t *testing.T, tests []errorCheckTestCase, checkFunc func(error) bool) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkFunc(tt.err); got != tt.want {
				t.Errorf("checkFunc(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{
			name: "rate limit error type",
			err:  &GeocodingError{Type: ErrorTypeRateLimit, Message: "rate limit exceeded"},
			want: true,
		},
		{name: "message contains rate limit", err: errors.New("rate limit exceeded"), want: true},
		{name: "message contains too many requests", err: errors.New("too many requests"), want: true},
		{name: "message contains 429", err: errors.New("nominatim returned status 429"), want: true},
		{
			name: "other error type",
			err:  &GeocodingError{Type: ErrorTypeNotFound, Message: "not found"},
			want: false,
		},
		{name: "unrelated error", err: errors.New("some other error"), want: false},
	}, IsRateLimitError)
}

func TestIsQuotaExceededError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{
			name: "quota error type",
			err:  &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: "quota"},
			want: true,
		},
		{name: "google status text", err: errors.New("status OVER_QUERY_LIMIT"), want: true},
		{name: "quota exceeded text", err: errors.New("daily quota exceeded"), want: true},
		{name: "unrelated error", err: errors.New("boom"), want: false},
	}, IsQuotaExceededError)
}

func TestIsTimeoutError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{
			name: "timeout error type",
			err:  &GeocodingError{Type: ErrorTypeTimeout, Message: "timed out"},
			want: true,
		},
		{name: "deadline exceeded", err: fmt.Errorf("get: %w", context.DeadlineExceeded), want: true},
		{name: "timeout text", err: errors.New("i/o timeout"), want: true},
		{name: "unrelated error", err: errors.New("connection refused"), want: false},
	}, IsTimeoutError)
}

func TestIsTransient(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: ClassifyHTTPError(429, ""), want: true},
		{name: "server error", err: ClassifyHTTPError(503, ""), want: true},
		{name: "gateway timeout", err: ClassifyHTTPError(504, ""), want: true},
		{name: "network", err: ClassifyTransportError(errors.New("connection reset")), want: true},
		{name: "not found", err: fmt.Errorf("lookup: %w", ErrNotFound), want: false},
		{name: "quota", err: ClassifyHTTPError(403, ""), want: false},
		{name: "bad request", err: ClassifyHTTPError(400, "missing q"), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain deadline", err: context.DeadlineExceeded, want: true},
	}, IsTransient)
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantType   ErrorType
	}{
		{name: "429 too many requests", statusCode: 429, wantType: ErrorTypeRateLimit},
		{name: "403 forbidden", statusCode: 403, wantType: ErrorTypeQuotaExceeded},
		{name: "401 unauthorized", statusCode: 401, wantType: ErrorTypeQuotaExceeded},
		{name: "400 bad request", statusCode: 400, body: "bad", wantType: ErrorTypeInvalidRequest},
		{name: "404 not found", statusCode: 404, wantType: ErrorTypeNotFound},
		{name: "408 request timeout", statusCode: 408, wantType: ErrorTypeTimeout},
		{name: "504 gateway timeout", statusCode: 504, wantType: ErrorTypeTimeout},
		{name: "503 service unavailable", statusCode: 503, wantType: ErrorTypeNetworkError},
		{name: "500 internal server error", statusCode: 500, wantType: ErrorTypeNetworkError},
		{name: "302 redirect", statusCode: 302, wantType: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyHTTPError(tt.statusCode, tt.body)
			if got.Type != tt.wantType {
				t.Errorf("ClassifyHTTPError() type = %v, want %v", got.Type, tt.wantType)
			}
		})
	}
}

func TestClassifyHTTPErrorKeepsBody(t *testing.T) {
	err := ClassifyHTTPError(400, "  invalid viewbox  ")
	if got := err.Error(); got != "invalid request: invalid viewbox" {
		t.Errorf("Error() = %q", got)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyTransportError(t *testing.T) {
	if got := ClassifyTransportError(timeoutErr{}); got.Type != ErrorTypeTimeout {
		t.Errorf("net timeout classified as %v", got.Type)
	}

	if got := ClassifyTransportError(errors.New("connection refused")); got.Type != ErrorTypeNetworkError {
		t.Errorf("connection error classified as %v", got.Type)
	}
}

func TestGeocodingErrorUnwrap(t *testing.T) {
	innerErr := errors.New("inner error")
	geoErr := &GeocodingError{
		Type:    ErrorTypeNetworkError,
		Message: "request failed",
		Err:     innerErr,
	}

	if !errors.Is(geoErr, innerErr) {
		t.Error("errors.Is should find wrapped error")
	}

	if !errors.Is(geoErr.Unwrap(), innerErr) {
		t.Error("Unwrap should return inner error")
	}
}

func TestNotFoundMatchesAnyNotFoundError(t *testing.T) {
	if !errors.Is(ClassifyHTTPError(404, ""), ErrNotFound) {
		t.Error("404 should match ErrNotFound")
	}

	if errors.Is(ClassifyHTTPError(500, ""), ErrNotFound) {
		t.Error("500 must not match ErrNotFound")
	}
}
