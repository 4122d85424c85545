// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pinmap/pinmap/dataset"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

// FileStore reads and writes a local CSV or XLSX file.
type FileStore struct {
	path    string
	sheet   string
	charset string

	mu sync.Mutex
}

// NewFileStore creates a store for path. sheet is only used for XLSX files.
func NewFileStore(path, sheet, charset string) *FileStore {
	return &FileStore{path: path, sheet: sheet, charset: charset}
}

func (s *FileStore) isXLSX() bool {
	ext := strings.ToLower(filepath.Ext(s.path))

	return ext == ".xlsx" || ext == ".xlsm"
}

// Read implements Reader.
func (s *FileStore) Read(_ context.Context) (*dataset.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isXLSX() {
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", s.path, err)
		}
		defer f.Close()

		return readSheet(f, s.sheet)
	}

	body, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	t, _, err := s.parseCSV(body)

	return t, err
}

func (s *FileStore) parseCSV(body []byte) (*dataset.Table, rune, error) {
	text, err := decodeText(body, "text/csv", s.charset)
	if err != nil {
		return nil, 0, err
	}

	return parseCSV(text)
}

// sourceEncoding returns the encoding of a CSV body as read by decodeText;
// nil means UTF-8.
func (s *FileStore) sourceEncoding(body []byte) (encoding.Encoding, error) {
	if s.charset != "" {
		enc, _ := charset.Lookup(s.charset)
		if enc == nil {
			return nil, fmt.Errorf("unknown charset %q", s.charset)
		}

		return enc, nil
	}

	if utf8.Valid(bytes.TrimPrefix(body, utf8BOM)) {
		return nil, nil
	}

	enc, _, _ := charset.DetermineEncoding(body, "text/csv")

	return enc, nil
}

// WriteCells implements Writer. XLSX cells holding numbers are written as
// numbers.
func (s *FileStore) WriteCells(_ context.Context, updates []CellUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(updates) == 0 {
		return nil
	}

	if s.isXLSX() {
		return s.writeXLSX(updates)
	}

	body, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	t, delim, err := s.parseCSV(body)
	if err != nil {
		return err
	}

	enc, err := s.sourceEncoding(body)
	if err != nil {
		return err
	}

	if err := applyUpdates(t, updates); err != nil {
		return err
	}

	var buf bytes.Buffer
	if bytes.HasPrefix(body, utf8BOM) {
		buf.Write(utf8BOM)
	}

	if err := writeCSV(&buf, t, delim); err != nil {
		return fmt.Errorf("encoding %s: %w", s.path, err)
	}

	out := buf.Bytes()
	if enc != nil {
		// the file keeps the charset it was read with
		if out, err = enc.NewEncoder().Bytes(out); err != nil {
			return fmt.Errorf("encoding %s: %w", s.path, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}

	return os.Rename(tmp, s.path)
}

func (s *FileStore) writeXLSX(updates []CellUpdate) error {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}

	newHeader, idx := ensureColumns(header, updates)

	for i := len(header); i < len(newHeader); i++ {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}

		if err := f.SetCellValue(sheet, cell, newHeader[i]); err != nil {
			return err
		}
	}

	for _, u := range updates {
		// Data row 0 is sheet row 2.
		cell, err := excelize.CoordinatesToCellName(idx[u.Column]+1, u.Row+2)
		if err != nil {
			return err
		}

		var v any = u.Value
		if n, err := strconv.ParseFloat(u.Value, 64); err == nil {
			v = n
		}

		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("setting %s: %w", cell, err)
		}
	}

	return f.Save()
}
