// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs a resolution batch over loaded customer records and
// reconciles the outcome with the dataset and the persistent store.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/geocoding"
	"github.com/pinmap/pinmap/spatial"
)

// DefaultMaxBatch is the number of addresses resolved per run.
const DefaultMaxBatch = 300

// Resolver is the part of geocoding.Resolver the pipeline needs.
type Resolver interface {
	BeginBatch()
	Resolve(ctx context.Context, address string) geocoding.Outcome
}

// Observer is notified after every resolution attempt. done counts from 1.
type Observer func(done, total int, rec *dataset.Record, out geocoding.Outcome)

// Options configures Run.
type Options struct {
	Region spatial.Region

	// MaxBatch caps the addresses sent to the resolver; 0 means
	// DefaultMaxBatch.
	MaxBatch int

	// Geocode enables resolution. When false pending rows are only counted.
	Geocode bool

	// Rescale tries dataset.Rescale on out-of-region input coordinates.
	Rescale bool

	Observer Observer
}

// Result is the outcome of one run.
type Result struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	// Records is the whole dataset with statuses set, in input order.
	Records     []*dataset.Record
	RenderReady []*dataset.Record
	Delta       []*dataset.Record

	AlreadyValid int
	Resolved     int
	// Unresolved counts every row without a valid coordinate after the run,
	// OverCap and Skipped included.
	Unresolved int
	OverCap    int
	Skipped    int
	Attempted  int
	Rescaled   int
}

// Summary is the one-line report shown to users.
func (r *Result) Summary() string {
	return fmt.Sprintf("%d on map, %d newly resolved, %d still unresolved", len(r.RenderReady), r.Resolved, r.Unresolved)
}

// Run classifies records, resolves the pending ones up to the batch cap and
// reconciles the result. Address level failures never abort the run; the
// only error is an invalid region.
func Run(ctx context.Context, records []*dataset.Record, resolver Resolver, opts Options) (*Result, error) {
	if err := opts.Region.Validate(); err != nil {
		return nil, err
	}

	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}

	res := &Result{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Records:   records,
	}

	if opts.Rescale {
		res.Rescaled = rescale(records, opts.Region)
	}

	before := TakeSnapshot(records, opts.Region)

	var pending []*dataset.Record

	for _, r := range records {
		switch {
		case before.Has(r.Row):
			r.Status = dataset.StatusValid
			res.AlreadyValid++
		case r.FullAddress == "":
			dropPoint(r)
			r.Status = dataset.StatusSkipped
			res.Skipped++
		default:
			dropPoint(r)
			r.Status = dataset.StatusPending
			pending = append(pending, r)
		}
	}

	batch := pending
	if opts.Geocode && len(batch) > opts.MaxBatch {
		batch = pending[:opts.MaxBatch]

		for _, r := range pending[opts.MaxBatch:] {
			r.Status = dataset.StatusOverCap
		}

		res.OverCap = len(pending) - opts.MaxBatch
		log.Printf("%d addresses to resolve, only the first %d are resolved this run", len(pending), opts.MaxBatch)
	}

	if opts.Geocode && resolver != nil {
		resolveBatch(ctx, batch, resolver, opts.Observer, res)
	} else {
		for _, r := range pending {
			r.Status = dataset.StatusUnresolved
		}
	}

	rec := Reconcile(before, records, opts.Region)
	res.RenderReady = rec.RenderReady
	res.Delta = rec.Delta
	res.Unresolved = rec.Unresolved
	res.FinishedAt = time.Now()

	return res, nil
}

func resolveBatch(ctx context.Context, batch []*dataset.Record, resolver Resolver, obs Observer, res *Result) {
	resolver.BeginBatch()

	for i, r := range batch {
		out := resolver.Resolve(ctx, r.FullAddress)
		res.Attempted++

		if out.Resolved() {
			p := *out.Point
			r.Point = &p
			r.Source = dataset.SourceGeocoded
			r.Status = dataset.StatusResolved
			res.Resolved++
		} else {
			r.Status = dataset.StatusUnresolved
		}

		if obs != nil {
			obs(i+1, len(batch), r, out)
		}
	}
}

// dropPoint clears a coordinate that failed validation so downstream code
// never sees a half-valid record.
func dropPoint(r *dataset.Record) {
	r.Point = nil
	r.Source = dataset.SourceNone
}

func rescale(records []*dataset.Record, region spatial.Region) int {
	n := 0

	for _, r := range records {
		if r.Point == nil || region.Contains(r.Point) {
			continue
		}

		if p := dataset.Rescale(r.Point, region); p != nil && region.Contains(p) {
			r.Point = p
			n++
		}
	}

	return n
}
