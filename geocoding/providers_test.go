// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pinmap/pinmap/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatimGeocode(t *testing.T) {
	var got url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"49.1951","lon":"16.6068","display_name":"Brno","importance":0.6,"category":"place","type":"city"}]`))
	}))
	defer srv.Close()

	g := NewNominatimGeocoder(srv.URL, srv.Client())

	res, err := g.Geocode(context.Background(), "Main 1, Brno 60200", spatial.DefaultRegion)
	require.NoError(t, err)

	assert.InDelta(t, 49.1951, res.Point.Lat, 1e-9)
	assert.InDelta(t, 16.6068, res.Point.Lng, 1e-9)
	assert.Equal(t, "nominatim", res.Provider)
	assert.Equal(t, "medium", res.Confidence)

	assert.Equal(t, "Main 1, Brno 60200", got.Get("q"))
	assert.Equal(t, "jsonv2", got.Get("format"))
	assert.Equal(t, "1", got.Get("bounded"))
	assert.Equal(t, "12.000000,55.100000,24.200000,47.500000", got.Get("viewbox"))
}

func TestNominatimNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewNominatimGeocoder(srv.URL, srv.Client()).Geocode(context.Background(), "Nowhere", spatial.DefaultRegion)
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsTransient(err))
}

func TestNominatimHTTPErrors(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewNominatimGeocoder(srv.URL, srv.Client()).Geocode(context.Background(), "Brno", spatial.DefaultRegion)
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestNominatimTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	_, err := NewNominatimGeocoder(endpoint, nil).Geocode(context.Background(), "Brno", spatial.DefaultRegion)
	require.Error(t, err)

	var geoErr *GeocodingError
	require.True(t, errors.As(err, &geoErr))
	assert.Equal(t, ErrorTypeNetworkError, geoErr.Type)
}

func TestGoogleMapsGeocode(t *testing.T) {
	var got url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()

		_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"Main 1, 602 00 Brno","geometry":{"location":{"lat":49.2,"lng":16.61},"location_type":"ROOFTOP"}}]}`))
	}))
	defer srv.Close()

	g := NewGoogleMapsGeocoder("secret", srv.Client()).WithEndpoint(srv.URL)

	res, err := g.Geocode(context.Background(), "Main 1, Brno 60200", spatial.DefaultRegion)
	require.NoError(t, err)

	assert.Equal(t, spatial.Point{Lat: 49.2, Lng: 16.61}, res.Point)
	assert.Equal(t, "high", res.Confidence)
	assert.Equal(t, "google_maps", res.Provider)
	assert.Equal(t, "secret", got.Get("key"))
	assert.Equal(t, "47.500000,12.000000|55.100000,24.200000", got.Get("bounds"))
}

func TestGoogleMapsStatuses(t *testing.T) {
	tests := []struct {
		status   string
		notFound bool
		wantType ErrorType
	}{
		{status: "ZERO_RESULTS", notFound: true, wantType: ErrorTypeNotFound},
		{status: "OVER_QUERY_LIMIT", wantType: ErrorTypeRateLimit},
		{status: "REQUEST_DENIED", wantType: ErrorTypeQuotaExceeded},
		{status: "INVALID_REQUEST", wantType: ErrorTypeInvalidRequest},
		{status: "UNKNOWN_ERROR", wantType: ErrorTypeNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"status":"` + tt.status + `","results":[]}`))
			}))
			defer srv.Close()

			_, err := NewGoogleMapsGeocoder("k", srv.Client()).WithEndpoint(srv.URL).
				Geocode(context.Background(), "Brno", spatial.DefaultRegion)
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))

			var geoErr *GeocodingError
			require.True(t, errors.As(err, &geoErr))
			assert.Equal(t, tt.wantType, geoErr.Type)
		})
	}
}
