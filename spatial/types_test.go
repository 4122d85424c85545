// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionContains(t *testing.T) {
	tests := []struct {
		name  string
		point *Point
		want  bool
	}{
		{name: "Brno", point: &Point{Lat: 49.20, Lng: 16.61}, want: true},
		{name: "on the boundary", point: &Point{Lat: 47.5, Lng: 12.0}, want: true},
		{name: "latitude out of range", point: &Point{Lat: 174.6, Lng: 16.61}, want: false},
		{name: "other continent", point: &Point{Lat: -34.88, Lng: -56.15}, want: false},
		{name: "nil point", point: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRegion.Contains(tt.point))
		})
	}
}

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion("48.5, 12.0, 51.1, 18.9")
	require.NoError(t, err)
	assert.Equal(t, Region{MinLat: 48.5, MinLng: 12.0, MaxLat: 51.1, MaxLng: 18.9}, r)

	again, err := ParseRegion(r.String())
	require.NoError(t, err)
	assert.Equal(t, r, again)

	_, err = ParseRegion("1,2,3")
	require.ErrorIs(t, err, ErrInvalidRegion)

	_, err = ParseRegion("51,12,48,18")
	require.ErrorIs(t, err, ErrInvalidRegion)

	_, err = ParseRegion("48,12,95,18")
	require.ErrorIs(t, err, ErrInvalidRegion)
}

func TestPointScan(t *testing.T) {
	p := Point{Lat: 49.2, Lng: 16.61}

	v, err := p.Value()
	require.NoError(t, err)

	var got Point
	require.NoError(t, got.Scan(v))
	assert.InDelta(t, p.Lat, got.Lat, 1e-6)
	assert.InDelta(t, p.Lng, got.Lng, 1e-6)

	require.Error(t, got.Scan(42))
}

func TestHaversineDistance(t *testing.T) {
	brno := &Point{Lat: 49.1951, Lng: 16.6068}
	prague := &Point{Lat: 50.0755, Lng: 14.4378}

	d := brno.HaversineDistance(prague)
	assert.InDelta(t, 185_000, d, 5_000)
	assert.InDelta(t, 0, brno.HaversineDistance(brno), 1e-9)
}
