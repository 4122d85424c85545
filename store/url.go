// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/utils/htmlutils"
)

// BrowserUserAgent is sent to spreadsheet publishing endpoints, which
// serve an HTML interstitial to unknown clients.
const BrowserUserAgent = "Mozilla/5.0 (compatible; pinmap)"

const maxSourceBytes = 32 << 20

// URLSource reads a published spreadsheet (CSV, or XLSX when the body is not
// CSV). It is read-only.
type URLSource struct {
	url     string
	client  *http.Client
	charset string
}

// NewURLSource creates a source for url.
func NewURLSource(url string, client *http.Client, charset string) *URLSource {
	if client == nil {
		client = http.DefaultClient
	}

	return &URLSource{url: url, client: client, charset: charset}
}

// Read implements Reader.
func (s *URLSource) Read(ctx context.Context) (*dataset.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", BrowserUserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching source: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}

	ct := resp.Header.Get("Content-Type")

	// unpublished sheets answer with a sign-in page
	if htmlutils.HasHTMLContentType(ct) || htmlutils.LooksLikeHTML(body) {
		title, _ := htmlutils.Title(bytes.NewReader(body), ct)

		return nil, fmt.Errorf("%w: got web page %q", ErrNotPublished, title)
	}

	return parseTabular(body, ct, s.charset, "")
}

// WriteCells implements Writer; published sources can't be written.
func (s *URLSource) WriteCells(context.Context, []CellUpdate) error {
	return ErrReadOnly
}
