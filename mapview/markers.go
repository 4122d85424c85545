// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package mapview renders resolved customer records as a clustered Leaflet
// map.
package mapview

import (
	"bytes"
	"html/template"

	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/spatial"
	"github.com/pinmap/pinmap/utils/textutils"
)

// DefaultTooltip labels markers of records without a name.
const DefaultTooltip = "Customer"

// Color tiers by turnover.
const (
	ColorNone   = "gray"
	ColorLow    = "blue"
	ColorMedium = "orange"
	ColorHigh   = "red"
)

// Turnover thresholds, in CZK, of the color tiers.
var (
	MediumTurnover = 100_000.0
	HighTurnover   = 1_000_000.0
)

// Marker is one pin on the map.
type Marker struct {
	Row     int           `json:"row"`
	Lat     float64       `json:"lat"`
	Lng     float64       `json:"lng"`
	Tooltip string        `json:"tooltip"`
	Popup   template.HTML `json:"popup"`
	Color   string        `json:"color"`
}

var popupTemplate = template.Must(template.New("popup").Funcs(template.FuncMap{
	"turnover": func(v *float64) string { return textutils.FormatMoney(*v) },
}).Parse(
	`<div style="font-size:14px">` +
		`<b>{{.Name}}</b><br>` +
		`{{with .Amount}}Turnover: {{turnover .}} CZK<br>{{end}}` +
		`{{with .Email}}Email: <a href="mailto:{{.}}">{{.}}</a><br>{{end}}` +
		`{{with .FullAddress}}Address: {{.}}{{end}}` +
		`</div>`))

// Popup returns the escaped popup body of r.
func Popup(r *dataset.Record) (template.HTML, error) {
	var buf bytes.Buffer
	if err := popupTemplate.Execute(&buf, r); err != nil {
		return "", err
	}

	return template.HTML(buf.String()), nil //nolint:gosec // produced by html/template
}

// Color returns the tier color for amount.
func Color(amount *float64) string {
	switch {
	case amount == nil:
		return ColorNone
	case *amount >= HighTurnover:
		return ColorHigh
	case *amount >= MediumTurnover:
		return ColorMedium
	default:
		return ColorLow
	}
}

// Markers builds markers for the records resolved inside region, in input
// order.
func Markers(records []*dataset.Record, region spatial.Region) ([]Marker, error) {
	markers := make([]Marker, 0, len(records))

	for _, r := range records {
		if !r.Resolved(region) {
			continue
		}

		popup, err := Popup(r)
		if err != nil {
			return nil, err
		}

		tooltip := r.Name
		if tooltip == "" {
			tooltip = DefaultTooltip
		}

		markers = append(markers, Marker{
			Row:     r.Row,
			Lat:     r.Point.Lat,
			Lng:     r.Point.Lng,
			Tooltip: tooltip,
			Popup:   popup,
			Color:   Color(r.Amount),
		})
	}

	return markers, nil
}
