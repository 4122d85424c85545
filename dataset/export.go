// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// exportHeader is the column order of CSV and XLSX exports.
var exportHeader = []string{
	"row", "name", "street", "city", "postal_code", "full_address",
	"amount", "email", "lat", "lon", "source", "status",
}

func exportRow(r *Record) []string {
	amount := ""
	if r.Amount != nil {
		amount = strconv.FormatFloat(*r.Amount, 'f', 2, 64)
	}

	lat, lon := "", ""
	if r.Point != nil {
		lat = strconv.FormatFloat(r.Point.Lat, 'f', 6, 64)
		lon = strconv.FormatFloat(r.Point.Lng, 'f', 6, 64)
	}

	return []string{
		strconv.Itoa(r.Row + 1),
		r.Name,
		r.Street,
		r.City,
		r.PostalCode,
		r.FullAddress,
		amount,
		r.Email,
		lat,
		lon,
		string(r.Source),
		string(r.Status),
	}
}

// WriteCSV writes records as UTF-8 CSV with a header row.
func WriteCSV(w io.Writer, records []*Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, r := range records {
		if err := cw.Write(exportRow(r)); err != nil {
			return fmt.Errorf("writing csv row %d: %w", r.Row, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// WriteXLSX writes records to a single-sheet workbook.
func WriteXLSX(w io.Writer, records []*Record) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"

	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("writing xlsx header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		row := exportRow(r)

		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}

		// keep numbers numeric so the sheet can sum turnover
		if r.Amount != nil {
			values[6] = *r.Amount
		}

		if r.Point != nil {
			values[8], values[9] = r.Point.Lat, r.Point.Lng
		}

		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("writing xlsx row %d: %w", r.Row, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}

	return nil
}
