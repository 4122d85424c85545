// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(v float64) *float64 { return &v }

func customer(row int, name string, lat, lng float64) *dataset.Record {
	return &dataset.Record{
		Row:         row,
		Name:        name,
		FullAddress: "Main 1, Brno 60200",
		Point:       &spatial.Point{Lat: lat, Lng: lng},
	}
}

func TestPopup(t *testing.T) {
	r := customer(0, "Acme <s.r.o.>", 49.2, 16.6)
	r.Amount = amount(1234.56)
	r.Email = "info@acme.cz"

	popup, err := Popup(r)
	require.NoError(t, err)

	s := string(popup)
	assert.Contains(t, s, "<b>Acme &lt;s.r.o.&gt;</b>")
	assert.Contains(t, s, "Turnover: 1,234.56 CZK")
	assert.Contains(t, s, `href="mailto:info@acme.cz"`)
	assert.Contains(t, s, "Address: Main 1, Brno 60200")
}

func TestPopupOmitsMissingFields(t *testing.T) {
	popup, err := Popup(&dataset.Record{Name: "Beta"})
	require.NoError(t, err)

	assert.NotContains(t, string(popup), "Turnover")
	assert.NotContains(t, string(popup), "Email")
	assert.NotContains(t, string(popup), "Address")
}

func TestColor(t *testing.T) {
	tests := []struct {
		amount *float64
		want   string
	}{
		{nil, ColorNone},
		{amount(10), ColorLow},
		{amount(100_000), ColorMedium},
		{amount(2_500_000), ColorHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Color(tt.amount))
	}
}

func TestMarkersSkipUnresolved(t *testing.T) {
	records := []*dataset.Record{
		customer(0, "", 49.2, 16.6),
		{Row: 1, Name: "No point"},
		customer(2, "Paris", 48.85, 2.35),
	}

	markers, err := Markers(records, spatial.DefaultRegion)
	require.NoError(t, err)

	require.Len(t, markers, 1)
	assert.Equal(t, 0, markers[0].Row)
	assert.Equal(t, DefaultTooltip, markers[0].Tooltip)
}

func TestAggregate(t *testing.T) {
	a := customer(0, "A", 49.1951, 16.6068)
	a.Amount = amount(100)
	b := customer(1, "B", 49.1952, 16.6069)
	b.Amount = amount(50)
	c := customer(2, "C", 50.0755, 14.4378)

	cells, err := Aggregate([]*dataset.Record{a, b, c, {Row: 3}}, spatial.DefaultRegion, DefaultResolution)
	require.NoError(t, err)

	require.Len(t, cells, 2)
	assert.Equal(t, 2, cells[0].Count)
	assert.InDelta(t, 150, cells[0].Turnover, 1e-9)
	assert.Equal(t, 1, cells[1].Count)
	assert.Len(t, cells[0].Boundary, 6)
	assert.InDelta(t, 49.195, cells[0].Center.Lat, 0.1)
}

func TestAggregateInvalidResolution(t *testing.T) {
	_, err := Aggregate(nil, spatial.DefaultRegion, 16)
	require.Error(t, err)
}

func TestBuildEmptyMap(t *testing.T) {
	v, err := Build([]*dataset.Record{{Row: 0, Name: "A"}}, Options{Region: spatial.DefaultRegion})
	require.NoError(t, err)

	assert.True(t, v.Empty)
	assert.Equal(t, EmptyCenter, v.Center)
	assert.Equal(t, EmptyZoom, v.Zoom)
	assert.Equal(t, EmptyMessage, v.Message)
}

func TestBuildCentresOnMean(t *testing.T) {
	v, err := Build([]*dataset.Record{
		customer(0, "A", 49.0, 16.0),
		customer(1, "B", 50.0, 18.0),
	}, Options{Region: spatial.DefaultRegion, Resolution: -1})
	require.NoError(t, err)

	assert.False(t, v.Empty)
	assert.InDelta(t, 49.5, v.Center.Lat, 1e-9)
	assert.InDelta(t, 17.0, v.Center.Lng, 1e-9)
	assert.Equal(t, DefaultZoom, v.Zoom)
	assert.Empty(t, v.Cells)
}

func TestRender(t *testing.T) {
	r := customer(0, "Acme", 49.2, 16.6)
	r.Amount = amount(1234.56)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, []*dataset.Record{r}, Options{Region: spatial.DefaultRegion, Title: "Customers"}))

	page := buf.String()
	assert.Contains(t, page, "<title>Customers</title>")
	assert.Contains(t, page, "L.markerClusterGroup()")
	assert.Contains(t, page, `"tooltip":"Acme"`)
	assert.Contains(t, page, "Turnover: 1,234.56 CZK")
	assert.False(t, strings.Contains(page, "<b>Acme</b>"), "popup markup is JSON escaped inside the script")
}

func TestRenderInvalidRegion(t *testing.T) {
	err := Render(&bytes.Buffer{}, nil, Options{})
	require.ErrorIs(t, err, spatial.ErrInvalidRegion)
}
