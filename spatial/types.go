// Copyright 2025 The PinMap Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const earthRadius = 6371e3 // meters

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lng, p.Lat)
}

// Value implements the driver.Valuer interface for database serialization.
func (p Point) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *Point) Scan(value interface{}) error {
	if value == nil {
		p.Lat, p.Lng = 0, 0

		return nil
	}

	switch v := value.(type) {
	case []byte:
		_, err := fmt.Sscanf(string(v), "POINT(%f %f)", &p.Lng, &p.Lat)

		return err
	case string:
		_, err := fmt.Sscanf(v, "POINT(%f %f)", &p.Lng, &p.Lat)

		return err
	default:
		return fmt.Errorf("spatial: unsupported type for Point scan: %T", value)
	}
}

// HaversineDistance calculates the distance between two points on Earth in meters.
func (p *Point) HaversineDistance(other *Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLng := (other.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// Region is the bounding box a coordinate must fall into to be considered
// plausible. Bounds are inclusive.
type Region struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// DefaultRegion covers Czechia, Slovakia and Poland with some margin.
var DefaultRegion = Region{
	MinLat: 47.5,
	MaxLat: 55.1,
	MinLng: 12.0,
	MaxLng: 24.2,
}

// ErrInvalidRegion is returned when a region can't be parsed or is empty.
var ErrInvalidRegion = errors.New("invalid region")

// Contains reports whether p lies inside the region. A nil point is never
// contained.
func (r Region) Contains(p *Point) bool {
	if p == nil {
		return false
	}

	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}

	return p.Lat >= r.MinLat && p.Lat <= r.MaxLat &&
		p.Lng >= r.MinLng && p.Lng <= r.MaxLng
}

// Validate checks the bounds are within the globe and not inverted.
func (r Region) Validate() error {
	if r.MinLat < -90 || r.MaxLat > 90 || r.MinLng < -180 || r.MaxLng > 180 {
		return fmt.Errorf("%w: bounds outside the globe (%s)", ErrInvalidRegion, r)
	}

	if r.MinLat >= r.MaxLat || r.MinLng >= r.MaxLng {
		return fmt.Errorf("%w: min must be lower than max (%s)", ErrInvalidRegion, r)
	}

	return nil
}

// Center returns the middle of the bounding box.
func (r Region) Center() Point {
	return Point{
		Lat: (r.MinLat + r.MaxLat) / 2,
		Lng: (r.MinLng + r.MaxLng) / 2,
	}
}

// String formats the region as "minLat,minLng,maxLat,maxLng", the same
// format accepted by ParseRegion.
func (r Region) String() string {
	return strings.Join([]string{
		strconv.FormatFloat(r.MinLat, 'f', -1, 64),
		strconv.FormatFloat(r.MinLng, 'f', -1, 64),
		strconv.FormatFloat(r.MaxLat, 'f', -1, 64),
		strconv.FormatFloat(r.MaxLng, 'f', -1, 64),
	}, ",")
}

// ParseRegion parses "minLat,minLng,maxLat,maxLng".
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("%w: expected minLat,minLng,maxLat,maxLng got %q", ErrInvalidRegion, s)
	}

	var vals [4]float64

	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Region{}, fmt.Errorf("%w: %q: %w", ErrInvalidRegion, part, err)
		}

		vals[i] = v
	}

	r := Region{MinLat: vals[0], MinLng: vals[1], MaxLat: vals[2], MaxLng: vals[3]}

	return r, r.Validate()
}
