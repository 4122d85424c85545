// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pinmap/pinmap/dataset"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsStore reads and writes one worksheet of a Google spreadsheet. Row 1
// is the header; data row i lives on sheet row i+2.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	sheet         string
}

// NewSheetsStore authenticates with credentialsFile, or the Application
// Default Credentials when empty, and returns a store for sheet ("Sheet1"
// when empty).
func NewSheetsStore(ctx context.Context, spreadsheetID, sheet, credentialsFile string) (*SheetsStore, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}

	creds, err := sheetsCredentials(ctx, credentialsFile)
	if err != nil {
		return nil, err
	}

	return NewSheetsStoreWithOptions(ctx, spreadsheetID, sheet, option.WithCredentials(creds))
}

func sheetsCredentials(ctx context.Context, credentialsFile string) (*google.Credentials, error) {
	if credentialsFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoCredentials, err)
		}

		return creds, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoCredentials, err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", credentialsFile, err)
	}

	return creds, nil
}

// NewSheetsStoreWithOptions builds the store from explicit client options.
func NewSheetsStoreWithOptions(ctx context.Context, spreadsheetID, sheet string, opts ...option.ClientOption) (*SheetsStore, error) {
	if sheet == "" {
		sheet = "Sheet1"
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}

	return &SheetsStore{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

// a1 returns the A1 reference of a 0-based column and 1-based sheet row.
func (s *SheetsStore) a1(col, row int) (string, error) {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return "", err
	}

	return quoteSheet(s.sheet) + "!" + cell, nil
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// Read implements Reader.
func (s *SheetsStore) Read(ctx context.Context) (*dataset.Table, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteSheet(s.sheet)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", s.sheet, err)
	}

	if len(resp.Values) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", s.sheet)
	}

	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = fmt.Sprint(v)
		}
	}

	return &dataset.Table{Header: trimHeader(rows[0]), Rows: rows[1:]}, nil
}

func (s *SheetsStore) header(ctx context.Context) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteSheet(s.sheet)+"!1:1").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading header of %q: %w", s.sheet, err)
	}

	if len(resp.Values) == 0 {
		return nil, nil
	}

	h := make([]string, len(resp.Values[0]))
	for i, v := range resp.Values[0] {
		h[i] = fmt.Sprint(v)
	}

	return h, nil
}

// WriteCells implements Writer with a single values.batchUpdate call.
// Missing header columns are created in the same call.
func (s *SheetsStore) WriteCells(ctx context.Context, updates []CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	header, err := s.header(ctx)
	if err != nil {
		return err
	}

	newHeader, idx := ensureColumns(header, updates)

	data := make([]*sheets.ValueRange, 0, len(updates)+len(newHeader)-len(header))

	for i := len(header); i < len(newHeader); i++ {
		ref, err := s.a1(i, 1)
		if err != nil {
			return err
		}

		data = append(data, &sheets.ValueRange{Range: ref, Values: [][]interface{}{{newHeader[i]}}})
	}

	for _, u := range updates {
		ref, err := s.a1(idx[u.Column], u.Row+2)
		if err != nil {
			return err
		}

		data = append(data, &sheets.ValueRange{Range: ref, Values: [][]interface{}{{u.Value}}})
	}

	_, err = s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("updating sheet %q: %w", s.sheet, err)
	}

	return nil
}
