// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pinmap/pinmap/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLoadAddressTable(t *testing.T) {
	table := &Table{
		Header: []string{"Nazwa odbiorcy", "Adres", "Miasto", "PSC", "Obrót w czk", "email"},
		Rows: [][]string{
			{"ACME s.r.o.", "Main 1", "Brno", "602 00", "1 234,50", "acme@example.com"},
			{"Empty", "0", "", "", "", ""},
			{"Short row", "Masarykova 3"},
		},
	}

	records, layout, err := Load(table, DefaultColumns)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.False(t, layout.HasCoordinates())
	assert.Equal(t, "lat", layout.LatColumn)
	assert.Equal(t, "lon", layout.LngColumn)

	amount := 1234.50
	want := &Record{
		Row:         0,
		Street:      "Main 1",
		City:        "Brno",
		PostalCode:  "60200",
		FullAddress: "Main 1, Brno 60200",
		Name:        "ACME s.r.o.",
		Amount:      &amount,
		Email:       "acme@example.com",
	}

	if diff := cmp.Diff(want, records[0]); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "", records[1].FullAddress)
	assert.Equal(t, "Masarykova 3", records[2].FullAddress)
	assert.Nil(t, records[2].Amount)
}

func TestLoadCoordinateTable(t *testing.T) {
	table := &Table{
		Header: []string{"Name", "Latitude", "LNG"},
		Rows: [][]string{
			{"a", "49,20", "16,61"},
			{"b", "174.6", "16.61"},
			{"c", "49.2", ""},
		},
	}

	records, layout, err := Load(table, DefaultColumns)
	require.NoError(t, err)

	assert.True(t, layout.HasCoordinates())
	assert.Equal(t, "Latitude", layout.LatColumn)
	assert.Equal(t, "LNG", layout.LngColumn)

	require.NotNil(t, records[0].Point)
	assert.Equal(t, spatial.Point{Lat: 49.20, Lng: 16.61}, *records[0].Point)
	assert.Equal(t, SourceInput, records[0].Source)

	// parsed but out of region: validation happens in the pipeline
	require.NotNil(t, records[1].Point)
	assert.False(t, records[1].Resolved(spatial.DefaultRegion))

	assert.Nil(t, records[2].Point)
	assert.Equal(t, SourceNone, records[2].Source)
}

func TestLoadMissingColumns(t *testing.T) {
	table := &Table{Header: []string{"Adres", "Nazwa odbiorcy"}}

	_, _, err := Load(table, DefaultColumns)
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "Miasto")
	assert.Contains(t, err.Error(), "PSC")
	assert.NotContains(t, err.Error(), "Adres,")
}

func TestLoadFullAddressColumn(t *testing.T) {
	table := &Table{
		Header: []string{"FullAddress", "Adres", "Miasto", "PSC"},
		Rows: [][]string{
			{" Main 1,  Brno 60200 ", "ignored", "ignored", "1"},
			{"", "Main 2", "Brno", "602 00"},
		},
	}

	records, _, err := Load(table, DefaultColumns)
	require.NoError(t, err)
	assert.Equal(t, "Main 1, Brno 60200", records[0].FullAddress)
	assert.Equal(t, "Main 2, Brno 60200", records[1].FullAddress)
}

func TestRecordKey(t *testing.T) {
	a := &Record{FullAddress: "Main 1, Brno 60200", Name: "ACME"}
	b := &Record{FullAddress: "main 1,  BRNO 60200", Name: "acme"}
	c := &Record{FullAddress: "Main 1, Brno 60200", Name: "Other"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func exportFixture() []*Record {
	amount := 1234.5

	return []*Record{
		{
			Row: 0, Name: "ACME", FullAddress: "Main 1, Brno 60200", Amount: &amount,
			Point: &spatial.Point{Lat: 49.2, Lng: 16.61}, Source: SourceGeocoded, Status: StatusResolved,
		},
		{Row: 4, Name: "Nowhere", Status: StatusUnresolved},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, exportFixture()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, []string{
		"1", "ACME", "", "", "", "Main 1, Brno 60200", "1234.50", "", "49.200000", "16.610000", "geocoded", "resolved",
	}, rows[1])
	assert.Equal(t, "5", rows[2][0])
	assert.Equal(t, "", rows[2][8])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, exportFixture()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)

	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "full_address", rows[0][5])
	assert.Equal(t, "ACME", rows[1][1])
	assert.Equal(t, "49.2", rows[1][8])
	assert.Equal(t, "1234.5", rows[1][6])
}
