// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset turns loosely shaped customer tables into typed records.
package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pinmap/pinmap/spatial"
	"github.com/pinmap/pinmap/utils/textutils"
)

// ErrMissingColumns is returned when a table has neither coordinate columns
// nor the full set of address columns.
var ErrMissingColumns = errors.New("missing required columns")

// Table is a header plus data rows, as read from a sheet or a file. Row i of
// Rows is data row i; the header is not counted.
type Table struct {
	Header []string
	Rows   [][]string
}

// Cell returns the value at (row, col) or "" when the row is short.
func (t *Table) Cell(row, col int) string {
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return ""
	}

	return t.Rows[row][col]
}

// Source tells where a record's coordinate came from.
type Source string

// Coordinate sources.
const (
	SourceNone     Source = ""
	SourceInput    Source = "input"
	SourceGeocoded Source = "geocoded"
)

// Status is the pipeline outcome for a record.
type Status string

// Record statuses.
const (
	StatusPending    Status = ""
	StatusValid      Status = "valid"      // had a valid coordinate on input
	StatusResolved   Status = "resolved"   // geocoded this run
	StatusUnresolved Status = "unresolved" // geocoding attempted or disabled, no coordinate
	StatusOverCap    Status = "over_cap"   // left out of the batch by the cap
	StatusSkipped    Status = "skipped"    // no address and no coordinate
)

// Record is one customer row.
type Record struct {
	Row         int            `json:"row"`
	Street      string         `json:"street,omitempty"`
	City        string         `json:"city,omitempty"`
	PostalCode  string         `json:"postal_code,omitempty"`
	FullAddress string         `json:"full_address,omitempty"`
	Name        string         `json:"name,omitempty"`
	Amount      *float64       `json:"amount,omitempty"`
	Email       string         `json:"email,omitempty"`
	Point       *spatial.Point `json:"point,omitempty"`
	Source      Source         `json:"source,omitempty"`
	Status      Status         `json:"status,omitempty"`
}

// Key identifies a record across pipeline runs over the same loaded data.
func (r *Record) Key() string {
	return CacheKey(r.FullAddress) + "|" + textutils.LowerASCIIFolding(r.Name)
}

// Resolved reports whether the record carries a coordinate inside region.
func (r *Record) Resolved(region spatial.Region) bool {
	return region.Contains(r.Point)
}

// ColumnMap lists the accepted header aliases for every field. Matching is
// case and accent insensitive.
type ColumnMap struct {
	Street      []string
	City        []string
	PostalCode  []string
	FullAddress []string
	Name        []string
	Amount      []string
	Email       []string
	Lat         []string
	Lng         []string
}

// DefaultColumns accepts the Polish/Czech headers of the customer sheet as
// well as English ones.
var DefaultColumns = ColumnMap{
	Street:      []string{"Adres", "Address", "Street", "Ulice"},
	City:        []string{"Miasto", "City", "Město"},
	PostalCode:  []string{"PSC", "Postal", "Postal code", "Zip", "Kod pocztowy"},
	FullAddress: []string{"FullAddress", "Full address"},
	Name:        []string{"Nazwa odbiorcy", "Name", "Customer", "Odběratel"},
	Amount:      []string{"Obrót w czk", "Obrot", "Amount", "Turnover"},
	Email:       []string{"email", "e-mail", "mail"},
	Lat:         []string{"lat", "latitude", "szerokosc"},
	Lng:         []string{"lon", "lng", "longitude", "dlugosc"},
}

// Layout is a ColumnMap resolved against a concrete header. Indexes are -1
// when the column is absent.
type Layout struct {
	Street      int
	City        int
	PostalCode  int
	FullAddress int
	Name        int
	Amount      int
	Email       int
	Lat         int
	Lng         int

	// LatColumn and LngColumn are the header names coordinates are written
	// back to. They default to "lat" and "lon" when the table has none.
	LatColumn string
	LngColumn string
}

// HasCoordinates reports whether both coordinate columns are present.
func (l Layout) HasCoordinates() bool {
	return l.Lat >= 0 && l.Lng >= 0
}

// HasAddress reports whether an address can be built for rows.
func (l Layout) HasAddress() bool {
	return l.FullAddress >= 0 || (l.Street >= 0 && l.City >= 0 && l.PostalCode >= 0)
}

func findColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		want := textutils.LowerASCIIFolding(alias)
		for i, h := range header {
			if textutils.LowerASCIIFolding(NormalizeField(h)) == want {
				return i
			}
		}
	}

	return -1
}

// Resolve locates every field in header. It fails with ErrMissingColumns
// when rows could neither be placed from coordinates nor geocoded.
func (m ColumnMap) Resolve(header []string) (Layout, error) {
	l := Layout{
		Street:      findColumn(header, m.Street),
		City:        findColumn(header, m.City),
		PostalCode:  findColumn(header, m.PostalCode),
		FullAddress: findColumn(header, m.FullAddress),
		Name:        findColumn(header, m.Name),
		Amount:      findColumn(header, m.Amount),
		Email:       findColumn(header, m.Email),
		Lat:         findColumn(header, m.Lat),
		Lng:         findColumn(header, m.Lng),
		LatColumn:   "lat",
		LngColumn:   "lon",
	}

	if l.Lat >= 0 {
		l.LatColumn = header[l.Lat]
	}

	if l.Lng >= 0 {
		l.LngColumn = header[l.Lng]
	}

	if l.HasCoordinates() || l.HasAddress() {
		return l, nil
	}

	var missing []string

	for _, c := range []struct {
		idx     int
		aliases []string
	}{
		{l.Street, m.Street},
		{l.City, m.City},
		{l.PostalCode, m.PostalCode},
	} {
		if c.idx < 0 && len(c.aliases) > 0 {
			missing = append(missing, c.aliases[0])
		}
	}

	return l, fmt.Errorf("%w: %s (or add %s/%s columns)",
		ErrMissingColumns, strings.Join(missing, ", "), m.first(m.Lat), m.first(m.Lng))
}

func (ColumnMap) first(aliases []string) string {
	if len(aliases) == 0 {
		return ""
	}

	return aliases[0]
}

// Load maps every table row to a Record. Coordinates are parsed but not
// validated; that is the pipeline's job since it owns the region.
func Load(t *Table, m ColumnMap) ([]*Record, Layout, error) {
	layout, err := m.Resolve(t.Header)
	if err != nil {
		return nil, layout, err
	}

	records := make([]*Record, 0, len(t.Rows))

	for i := range t.Rows {
		rec := &Record{
			Row:        i,
			Street:     NormalizeField(t.Cell(i, layout.Street)),
			City:       NormalizeField(t.Cell(i, layout.City)),
			PostalCode: strings.ReplaceAll(NormalizeField(t.Cell(i, layout.PostalCode)), " ", ""),
			Name:       NormalizeField(t.Cell(i, layout.Name)),
			Email:      NormalizeField(t.Cell(i, layout.Email)),
		}

		if layout.Amount >= 0 {
			rec.Amount = ParseAmount(t.Cell(i, layout.Amount))
		}

		rec.FullAddress = NormalizeAddress(t.Cell(i, layout.FullAddress))
		if rec.FullAddress == "" {
			rec.FullAddress = CanonicalAddress(rec.Street, rec.City, rec.PostalCode)
		}

		if layout.HasCoordinates() {
			rec.Point = ParsePoint(t.Cell(i, layout.Lat), t.Cell(i, layout.Lng))
			if rec.Point != nil {
				rec.Source = SourceInput
			}
		}

		records = append(records, rec)
	}

	return records, layout, nil
}
