// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pinmap/pinmap/spatial"
)

// GoogleMapsEndpoint is the Google Maps Geocoding API URL.
const GoogleMapsEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsGeocoder uses Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder. A nil client uses
// http.DefaultClient; callers normally pass one built by httputils.NewClient.
func NewGoogleMapsGeocoder(apiKey string, client *http.Client) *GoogleMapsGeocoder {
	if client == nil {
		client = http.DefaultClient
	}

	return &GoogleMapsGeocoder{
		apiKey:     apiKey,
		endpoint:   GoogleMapsEndpoint,
		httpClient: client,
	}
}

// WithEndpoint overrides the API URL.
func (g *GoogleMapsGeocoder) WithEndpoint(endpoint string) *GoogleMapsGeocoder {
	g.endpoint = endpoint

	return g
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

// Geocode implements Geocoder.
func (g *GoogleMapsGeocoder) Geocode(ctx context.Context, query string, region spatial.Region) (*Result, error) {
	params := url.Values{}
	params.Set("address", query)
	params.Set("key", g.apiKey)

	if region.Validate() == nil {
		params.Set("bounds", fmt.Sprintf("%f,%f|%f,%f", region.MinLat, region.MinLng, region.MaxLat, region.MaxLng))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyTransportError(err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return nil, ClassifyHTTPError(resp.StatusCode, string(body))
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeNetworkError, Message: "decoding response", Err: err}
	}

	if err := classifyGoogleStatus(gmResp.Status, gmResp.ErrorMessage); err != nil {
		return nil, err
	}

	if len(gmResp.Results) == 0 {
		return nil, fmt.Errorf("no results found for %q: %w", query, ErrNotFound)
	}

	result := gmResp.Results[0]

	confidence := "low"

	switch result.Geometry.LocationType {
	case "ROOFTOP", "RANGE_INTERPOLATED":
		confidence = "high"
	case "GEOMETRIC_CENTER":
		confidence = "medium"
	}

	return &Result{
		Point:       spatial.Point{Lat: result.Geometry.Location.Lat, Lng: result.Geometry.Location.Lng},
		Confidence:  confidence,
		Provider:    "google_maps",
		DisplayName: result.FormattedAddress,
	}, nil
}

// classifyGoogleStatus maps the API's in-body status to a GeocodingError.
func classifyGoogleStatus(status, message string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS":
		return ErrNotFound
	case "OVER_QUERY_LIMIT":
		return &GeocodingError{Type: ErrorTypeRateLimit, Message: "google maps: OVER_QUERY_LIMIT"}
	case "REQUEST_DENIED", "OVER_DAILY_LIMIT":
		return &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: "google maps: " + status + " " + message}
	case "INVALID_REQUEST":
		return &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "google maps: INVALID_REQUEST " + message}
	case "UNKNOWN_ERROR":
		return &GeocodingError{Type: ErrorTypeNetworkError, Message: "google maps: UNKNOWN_ERROR"}
	default:
		return &GeocodingError{Type: ErrorTypeUnknown, Message: "google maps status: " + status}
	}
}
