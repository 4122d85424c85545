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
	"strconv"

	"github.com/pinmap/pinmap/spatial"
)

// NominatimEndpoint is the public OpenStreetMap search API.
const NominatimEndpoint = "https://nominatim.openstreetmap.org/search"

// NominatimGeocoder queries an OSM Nominatim instance. The public instance
// allows at most one request per second and requires an identifying
// User-Agent; both are the caller's responsibility (see Resolver and
// httputils.NewClient).
type NominatimGeocoder struct {
	endpoint   string
	httpClient *http.Client
}

// NewNominatimGeocoder creates a geocoder for endpoint, or the public
// instance when endpoint is empty.
func NewNominatimGeocoder(endpoint string, client *http.Client) *NominatimGeocoder {
	if endpoint == "" {
		endpoint = NominatimEndpoint
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &NominatimGeocoder{endpoint: endpoint, httpClient: client}
}

type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
}

// Geocode implements Geocoder.
func (n *NominatimGeocoder) Geocode(ctx context.Context, query string, region spatial.Region) (*Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	if region.Validate() == nil {
		// left,top,right,bottom
		params.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f", region.MinLng, region.MaxLat, region.MaxLng, region.MinLat))
		params.Set("bounded", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyTransportError(err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return nil, ClassifyHTTPError(resp.StatusCode, string(body))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeNetworkError, Message: "decoding response", Err: err}
	}

	if len(places) == 0 {
		return nil, fmt.Errorf("no results found for %q: %w", query, ErrNotFound)
	}

	place := places[0]

	lat, err := strconv.ParseFloat(place.Lat, 64)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "unparsable latitude " + place.Lat, Err: err}
	}

	lng, err := strconv.ParseFloat(place.Lon, 64)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "unparsable longitude " + place.Lon, Err: err}
	}

	confidence := "low"

	switch {
	case place.Category == "building" || place.Type == "house":
		confidence = "high"
	case place.Importance >= 0.4:
		confidence = "medium"
	}

	return &Result{
		Point:       spatial.Point{Lat: lat, Lng: lng},
		Confidence:  confidence,
		Provider:    "nominatim",
		DisplayName: place.DisplayName,
	}, nil
}
