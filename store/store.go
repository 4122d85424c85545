// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package store reads customer tables from files, URLs, Google Sheets and SQL
// databases, and writes resolved coordinates back to them.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/lib/pq"
	"github.com/pinmap/pinmap/dataset"
	"google.golang.org/api/googleapi"
)

var (
	// ErrNoCredentials is returned when a store needs credentials that were
	// not configured.
	ErrNoCredentials = errors.New("no credentials configured for the persistent store")

	// ErrReadOnly is returned by WriteCells on sources that can't be written.
	ErrReadOnly = errors.New("source is read-only")

	// ErrNotPublished is returned when a URL serves a web page instead of a
	// table, typically a sheet that is not published to the web.
	ErrNotPublished = errors.New("source is not a published table")

	// ErrUnsupportedSource is returned by Open for unknown URIs.
	ErrUnsupportedSource = errors.New("unsupported source")
)

// CellUpdate sets one cell. Row is the 0-based data row (the header is not
// counted) and Column a header name; a missing column is appended.
type CellUpdate struct {
	Row    int
	Column string
	Value  string
}

// Reader returns the current table.
type Reader interface {
	Read(ctx context.Context) (*dataset.Table, error)
}

// Writer patches cells addressed by row position and column name.
type Writer interface {
	WriteCells(ctx context.Context, updates []CellUpdate) error
}

// Store is a source that can also be written.
type Store interface {
	Reader
	Writer
}

// Options configures Open.
type Options struct {
	// HTTPClient fetches remote sources.
	HTTPClient *http.Client

	// Charset overrides the text encoding of CSV sources (e.g. "windows-1250").
	Charset string

	// Sheet selects the worksheet of XLSX files and Google spreadsheets.
	Sheet string

	// CredentialsFile is a service account JSON used for Google Sheets.
	CredentialsFile string
}

// Open returns the store described by uri:
//
//	https://...                        published CSV/XLSX (read-only)
//	sheets://<spreadsheet id>[/<sheet>] Google Sheets
//	duckdb://<file>?table=<name>       DuckDB table ("duckdb://" for memory)
//	postgres://...?table=<name>        PostgreSQL table
//	<path>.csv, <path>.xlsx            local file
func Open(ctx context.Context, uri string, opts Options) (Reader, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return NewURLSource(uri, opts.HTTPClient, opts.Charset), nil
	case strings.HasPrefix(uri, "sheets://"):
		id, sheet, _ := strings.Cut(strings.TrimPrefix(uri, "sheets://"), "/")
		if sheet == "" {
			sheet = opts.Sheet
		}

		s, err := NewSheetsStore(ctx, id, sheet, opts.CredentialsFile)
		if err != nil {
			return nil, err
		}

		return s, nil
	case strings.HasPrefix(uri, "duckdb:"), strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		s, err := OpenSQL(uri)
		if err != nil {
			return nil, err
		}

		return s, nil
	}

	switch strings.ToLower(filepath.Ext(uri)) {
	case ".csv", ".xlsx", ".xlsm":
		return NewFileStore(uri, opts.Sheet, opts.Charset), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, uri)
}

// IsRetryable reports whether a store error is worth retrying with backoff:
// quota and rate limits, server errors and timeouts.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch {
		case gErr.Code == http.StatusTooManyRequests, gErr.Code >= 500:
			return true
		case gErr.Code == http.StatusForbidden:
			for _, e := range gErr.Errors {
				if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
					return true
				}
			}

			return strings.Contains(strings.ToLower(gErr.Message), "quota")
		default:
			return false
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		default:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error

	return errors.As(err, &urlErr)
}

// columnIndex returns the index of name in header, case-insensitively, or -1.
func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}

	return -1
}

// ensureColumns returns header extended with the update columns it lacks,
// and the index of every update column.
func ensureColumns(header []string, updates []CellUpdate) ([]string, map[string]int) {
	idx := make(map[string]int)

	for _, u := range updates {
		if _, ok := idx[u.Column]; ok {
			continue
		}

		i := columnIndex(header, u.Column)
		if i < 0 {
			header = append(header, u.Column)
			i = len(header) - 1
		}

		idx[u.Column] = i
	}

	return header, idx
}
