// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/spatial"
)

//go:embed templates/map.html
var templatesFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templatesFS, "templates/map.html"))

// Defaults of the rendered page.
const (
	DefaultZoom   = 8
	EmptyZoom     = 7
	DefaultHeight = 700
	DefaultTitle  = "Customer map"
)

// EmptyCenter is where the map opens when no record has a coordinate.
var EmptyCenter = spatial.Point{Lat: 49.8, Lng: 18.2}

// EmptyMessage tells users how to get pins on an empty map.
const EmptyMessage = "No customer has coordinates yet. Add 'lat' and 'lon' columns to the data, or enable geocoding to resolve addresses."

// Options configures Build.
type Options struct {
	Region spatial.Region
	Title  string
	Height int

	// Resolution of the hexagon layer. Zero means DefaultResolution and a
	// negative value disables the layer.
	Resolution int

	// Message is shown above the map when the map is not empty.
	Message string
}

// View is everything the page template needs.
type View struct {
	Title   string        `json:"title"`
	Center  spatial.Point `json:"center"`
	Zoom    int           `json:"zoom"`
	Height  int           `json:"height"`
	Markers []Marker      `json:"markers"`
	Cells   []Cell        `json:"cells"`
	Empty   bool          `json:"empty"`
	Message string        `json:"message,omitempty"`
}

// Build prepares the view of records. The map is centred on the mean of the
// resolved points, or on EmptyCenter with a guidance message when there are
// none.
func Build(records []*dataset.Record, opts Options) (*View, error) {
	if err := opts.Region.Validate(); err != nil {
		return nil, err
	}

	markers, err := Markers(records, opts.Region)
	if err != nil {
		return nil, fmt.Errorf("building markers: %w", err)
	}

	v := &View{
		Title:   opts.Title,
		Height:  opts.Height,
		Markers: markers,
		Cells:   []Cell{},
		Message: opts.Message,
	}

	if v.Title == "" {
		v.Title = DefaultTitle
	}

	if v.Height <= 0 {
		v.Height = DefaultHeight
	}

	if len(markers) == 0 {
		v.Empty = true
		v.Center = EmptyCenter
		v.Zoom = EmptyZoom
		v.Message = EmptyMessage

		return v, nil
	}

	var lat, lng float64
	for _, m := range markers {
		lat += m.Lat
		lng += m.Lng
	}

	v.Center = spatial.Point{Lat: lat / float64(len(markers)), Lng: lng / float64(len(markers))}
	v.Zoom = DefaultZoom

	if opts.Resolution >= 0 {
		res := opts.Resolution
		if res == 0 {
			res = DefaultResolution
		}

		v.Cells, err = Aggregate(records, opts.Region, res)
		if err != nil {
			return nil, err
		}
	}

	return v, nil
}

// Render writes v as a standalone HTML page.
func (v *View) Render(w io.Writer) error {
	return pageTemplate.Execute(w, v)
}

// Render builds the view of records and writes it to w.
func Render(w io.Writer, records []*dataset.Record, opts Options) error {
	v, err := Build(records, opts)
	if err != nil {
		return err
	}

	return v.Render(w)
}
