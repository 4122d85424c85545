// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/spatial"
)

// Snapshot records which rows held a valid coordinate at some point in time.
type Snapshot map[int]struct{}

// TakeSnapshot captures the rows of records that are valid in region.
func TakeSnapshot(records []*dataset.Record, region spatial.Region) Snapshot {
	s := make(Snapshot, len(records))

	for _, r := range records {
		if r.Resolved(region) {
			s[r.Row] = struct{}{}
		}
	}

	return s
}

// Has reports whether row was valid when the snapshot was taken.
func (s Snapshot) Has(row int) bool {
	_, ok := s[row]

	return ok
}

// Reconciliation compares a dataset before and after a resolution batch.
// Delta is always a subset of RenderReady.
type Reconciliation struct {
	RenderReady []*dataset.Record
	Delta       []*dataset.Record
	Unresolved  int
}

// Reconcile computes the render-ready set, the newly resolved delta and the
// count of rows still without a valid coordinate. Order follows records.
func Reconcile(before Snapshot, records []*dataset.Record, region spatial.Region) Reconciliation {
	var rec Reconciliation

	for _, r := range records {
		if !r.Resolved(region) {
			rec.Unresolved++

			continue
		}

		rec.RenderReady = append(rec.RenderReady, r)

		if !before.Has(r.Row) {
			rec.Delta = append(rec.Delta, r)
		}
	}

	return rec
}
