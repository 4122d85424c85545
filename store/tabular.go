// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/pinmap/pinmap/dataset"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html/charset"
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte("PK\x03\x04")
)

// decodeText converts body to UTF-8. An explicit label wins, then the
// charset of contentType; otherwise valid UTF-8 is kept and anything else is
// decoded with the charset package's sniffing.
func decodeText(body []byte, contentType, label string) ([]byte, error) {
	body = bytes.TrimPrefix(body, utf8BOM)

	if label != "" {
		enc, _ := charset.Lookup(label)
		if enc == nil {
			return nil, fmt.Errorf("unknown charset %q", label)
		}

		return io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	}

	declared := false
	if _, params, err := mime.ParseMediaType(contentType); err == nil && params["charset"] != "" {
		declared = true
	}

	if !declared && utf8.Valid(body) {
		return body, nil
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("decoding text: %w", err)
	}

	return io.ReadAll(r)
}

// sniffDelimiter picks the most frequent of ',', ';' and tab in the first
// line.
func sniffDelimiter(body []byte) rune {
	line := body
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		line = body[:i]
	}

	best, count := ',', bytes.Count(line, []byte{','})

	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > count {
			best, count = d, n
		}
	}

	return best
}

// parseCSV reads a UTF-8 CSV body into a table. The first record is the
// header.
func parseCSV(body []byte) (*dataset.Table, rune, error) {
	delim := sniffDelimiter(body)

	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, delim, fmt.Errorf("parsing CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, delim, errors.New("parsing CSV: empty input")
	}

	return &dataset.Table{Header: trimHeader(records[0]), Rows: records[1:]}, delim, nil
}

// parseXLSX reads sheet (the first one when empty) of an XLSX workbook.
func parseXLSX(r io.Reader, sheet string) (*dataset.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	return readSheet(f, sheet)
}

func readSheet(f *excelize.File, sheet string) (*dataset.Table, error) {
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	return &dataset.Table{Header: trimHeader(rows[0]), Rows: rows[1:]}, nil
}

// parseTabular parses CSV or XLSX content, trying XLSX when the body does not
// look like CSV.
func parseTabular(body []byte, contentType, label, sheet string) (*dataset.Table, error) {
	if bytes.HasPrefix(body, zipMagic) {
		return parseXLSX(bytes.NewReader(body), sheet)
	}

	text, err := decodeText(body, contentType, label)
	if err != nil {
		return nil, err
	}

	t, _, csvErr := parseCSV(text)
	if csvErr == nil {
		return t, nil
	}

	t, xlsxErr := parseXLSX(bytes.NewReader(body), sheet)
	if xlsxErr != nil {
		return nil, errors.Join(csvErr, xlsxErr)
	}

	return t, nil
}

func trimHeader(h []string) []string {
	out := make([]string, len(h))
	for i, s := range h {
		out[i] = strings.TrimSpace(s)
	}

	return out
}

// writeCSV writes t with delim.
func writeCSV(w io.Writer, t *dataset.Table, delim rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim

	if err := cw.Write(t.Header); err != nil {
		return err
	}

	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}

	return cw.Error()
}

// applyUpdates patches t in place, appending missing columns to the header.
func applyUpdates(t *dataset.Table, updates []CellUpdate) error {
	var idx map[string]int

	t.Header, idx = ensureColumns(t.Header, updates)

	for _, u := range updates {
		if u.Row < 0 || u.Row >= len(t.Rows) {
			return fmt.Errorf("row %d out of range (%d rows)", u.Row, len(t.Rows))
		}

		col := idx[u.Column]

		row := t.Rows[u.Row]
		for len(row) <= col {
			row = append(row, "")
		}

		row[col] = u.Value
		t.Rows[u.Row] = row
	}

	return nil
}
