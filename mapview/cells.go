// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"fmt"
	"sort"

	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/spatial"
	"github.com/uber/h3-go/v4"
)

// DefaultResolution is the h3 resolution of Aggregate cells, roughly
// district sized.
const DefaultResolution = 6

// Cell is an h3 hexagon with the customers that fall in it.
type Cell struct {
	Index      string        `json:"index"`
	Resolution int           `json:"resolution"`
	Center     spatial.Point `json:"center"`
	Count      int           `json:"count"`
	Turnover   float64       `json:"turnover"`
	Boundary   [][2]float64  `json:"boundary"`
}

// Aggregate groups the records resolved inside region into h3 cells of the
// given resolution, busiest first.
func Aggregate(records []*dataset.Record, region spatial.Region, resolution int) ([]Cell, error) {
	if resolution < 0 || resolution > 15 {
		return nil, fmt.Errorf("invalid h3 resolution %d", resolution)
	}

	byCell := make(map[h3.Cell]*Cell)

	for _, r := range records {
		if !r.Resolved(region) {
			continue
		}

		c, err := h3.LatLngToCell(h3.NewLatLng(r.Point.Lat, r.Point.Lng), resolution)
		if err != nil {
			return nil, fmt.Errorf("error converting row %d to h3 cell: %w", r.Row, err)
		}

		agg, ok := byCell[c]
		if !ok {
			agg, err = newCell(c, resolution)
			if err != nil {
				return nil, err
			}

			byCell[c] = agg
		}

		agg.Count++

		if r.Amount != nil {
			agg.Turnover += *r.Amount
		}
	}

	cells := make([]Cell, 0, len(byCell))
	for _, c := range byCell {
		cells = append(cells, *c)
	}

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Count != cells[j].Count {
			return cells[i].Count > cells[j].Count
		}

		return cells[i].Index < cells[j].Index
	})

	return cells, nil
}

func newCell(c h3.Cell, resolution int) (*Cell, error) {
	center, err := h3.CellToLatLng(c)
	if err != nil {
		return nil, fmt.Errorf("error computing center of %s: %w", c, err)
	}

	boundary, err := h3.CellToBoundary(c)
	if err != nil {
		return nil, fmt.Errorf("error computing boundary of %s: %w", c, err)
	}

	ring := make([][2]float64, len(boundary))
	for i, v := range boundary {
		ring[i] = [2]float64{v.Lat, v.Lng}
	}

	return &Cell{
		Index:      c.String(),
		Resolution: resolution,
		Center:     spatial.Point{Lat: center.Lat, Lng: center.Lng},
		Boundary:   ring,
	}, nil
}
