// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocoding resolves canonical addresses to coordinates through a
// rate-limited, retried and cached provider.
package geocoding

import (
	"context"

	"github.com/pinmap/pinmap/spatial"
)

// Result represents a geocoding result from any provider.
type Result struct {
	Point       spatial.Point
	Confidence  string // high, medium, low
	Provider    string
	DisplayName string
}

// Geocoder looks up a single free-form query. Region bounds the search where
// the provider supports it; callers still validate the returned point.
// Providers return an error wrapping ErrNotFound when nothing matches.
type Geocoder interface {
	Geocode(ctx context.Context, query string, region spatial.Region) (*Result, error)
}

// GeocoderFunc adapts a function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, query string, region spatial.Region) (*Result, error)

// Geocode implements Geocoder.
func (f GeocoderFunc) Geocode(ctx context.Context, query string, region spatial.Region) (*Result, error) {
	return f(ctx, query, region)
}
