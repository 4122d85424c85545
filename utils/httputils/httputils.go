// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils provides utility functions for working with HTTP.
package httputils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"
)

// secretParams are query parameters never written to traces.
var secretParams = []string{"key", "api_key", "access_token"}

// RedactURL returns u as a string with credential query parameters masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	changed := false

	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")

			changed = true
		}
	}

	if !changed {
		return u.String()
	}

	c := *u
	c.RawQuery = q.Encode()

	return c.String()
}

// TraceRoundTripper writes one line per HTTP transaction to Writer and,
// when DumpBody is set, the response body as well.
type TraceRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
	DumpBody  bool
}

// RoundTrip implements the http.RoundTripper interface.
func (t *TraceRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.transport().RoundTrip(req)
	}

	start := time.Now()
	resp, err := t.transport().RoundTrip(req)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		_, _ = fmt.Fprintf(t.Writer, "> %s %s ! %v [%v]\n", req.Method, RedactURL(req.URL), err, elapsed)

		return nil, err
	}

	_, _ = fmt.Fprintf(t.Writer, "> %s %s < %d [%v]\n", req.Method, RedactURL(req.URL), resp.StatusCode, elapsed)

	if t.DumpBody {
		dump, derr := httputil.DumpResponse(resp, true)
		if derr != nil {
			return nil, fmt.Errorf("tracing HTTP response: %w", derr)
		}

		lines := strings.Split(string(dump), "\n")
		for i, line := range lines {
			lines[i] = "< " + line
		}

		_, _ = fmt.Fprintln(t.Writer, strings.Join(lines, "\n"))
	}

	return resp, nil
}

func (t *TraceRoundTripper) transport() http.RoundTripper {
	if t.Transport == nil {
		return http.DefaultTransport
	}

	return t.Transport
}

// HeadersRoundTripper sets fixed headers on every request. Geocoding
// providers such as Nominatim reject requests without an identifying
// User-Agent.
type HeadersRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *HeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return transport.RoundTrip(req)
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	// Timeout bounds every request, including reading the body.
	Timeout time.Duration

	// UserAgent is sent with every request when set.
	UserAgent string

	// Trace receives a line per request when set.
	Trace io.Writer

	// TraceBody includes response bodies in the trace.
	TraceBody bool
}

// NewClient builds the HTTP client used for geocoders and remote sources.
func NewClient(opts ClientOptions) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
	}

	var rt http.RoundTripper = &TraceRoundTripper{
		Transport: transport,
		Writer:    opts.Trace,
		DumpBody:  opts.TraceBody,
	}

	if opts.UserAgent != "" {
		rt = &HeadersRoundTripper{
			Transport: rt,
			Headers:   map[string]string{"User-Agent": opts.UserAgent},
		}
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
}
