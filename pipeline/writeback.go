// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/store"
	"github.com/pinmap/pinmap/utils/retry"
)

// ErrWriteInProgress is returned when a write-back is already running.
var ErrWriteInProgress = errors.New("write-back already in progress")

// Ledger remembers which records were persisted in this session.
type Ledger struct {
	mu      sync.Mutex
	written map[string]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{written: make(map[string]struct{})}
}

// Has reports whether the record with key was already persisted.
func (l *Ledger) Has(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.written[key]

	return ok
}

// Mark records records as persisted.
func (l *Ledger) Mark(records ...*dataset.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range records {
		l.written[r.Key()] = struct{}{}
	}
}

// Pending returns the records of delta whose key was not persisted yet, in
// order. Rows sharing a key are all returned so one write-back covers each
// of them before the key is marked.
func (l *Ledger) Pending(delta []*dataset.Record) []*dataset.Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*dataset.Record, 0, len(delta))

	for _, r := range delta {
		if _, ok := l.written[r.Key()]; ok {
			continue
		}

		out = append(out, r)
	}

	return out
}

// Len returns the number of persisted keys.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.written)
}

// DefaultWritePolicy retries quota and server errors from the store.
func DefaultWritePolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
	}
}

// WriteReport describes one write-back.
type WriteReport struct {
	Written          int
	AlreadyPersisted int
	Attempts         int
}

// WriteBacker persists newly resolved coordinates. Only one write-back may
// run at a time; a concurrent call fails with ErrWriteInProgress.
type WriteBacker struct {
	writer    store.Writer
	ledger    *Ledger
	policy    retry.Policy
	latColumn string
	lngColumn string

	running sync.Mutex
}

// NewWriteBacker creates a write-backer targeting the coordinate columns of
// layout. A nil writer makes every call fail with store.ErrNoCredentials.
func NewWriteBacker(w store.Writer, layout dataset.Layout, ledger *Ledger, policy retry.Policy) *WriteBacker {
	if ledger == nil {
		ledger = NewLedger()
	}

	if policy.MaxAttempts == 0 {
		policy = DefaultWritePolicy()
	}

	wb := &WriteBacker{
		writer:    w,
		ledger:    ledger,
		policy:    policy,
		latColumn: layout.LatColumn,
		lngColumn: layout.LngColumn,
	}

	if wb.latColumn == "" {
		wb.latColumn = "lat"
	}

	if wb.lngColumn == "" {
		wb.lngColumn = "lon"
	}

	return wb
}

// Ledger returns the session ledger.
func (wb *WriteBacker) Ledger() *Ledger {
	return wb.ledger
}

// WriteBack writes the coordinates of delta records not yet persisted this
// session. The ledger is only updated after the store accepted the write, so
// a failed call can be repeated.
func (wb *WriteBacker) WriteBack(ctx context.Context, delta []*dataset.Record) (WriteReport, error) {
	var report WriteReport

	if wb.writer == nil {
		return report, store.ErrNoCredentials
	}

	if !wb.running.TryLock() {
		return report, ErrWriteInProgress
	}
	defer wb.running.Unlock()

	var valid []*dataset.Record

	for _, r := range delta {
		if r.Point != nil {
			valid = append(valid, r)
		}
	}

	pending := wb.ledger.Pending(valid)
	report.AlreadyPersisted = len(valid) - len(pending)

	if len(pending) == 0 {
		return report, nil
	}

	updates := make([]store.CellUpdate, 0, 2*len(pending))
	for _, r := range pending {
		updates = append(updates,
			store.CellUpdate{Row: r.Row, Column: wb.latColumn, Value: formatCoordinate(r.Point.Lat)},
			store.CellUpdate{Row: r.Row, Column: wb.lngColumn, Value: formatCoordinate(r.Point.Lng)},
		)
	}

	err := wb.policy.Do(ctx, store.IsRetryable, func(attempt int) error {
		report.Attempts = attempt
		if attempt > 1 {
			log.Printf("retrying write-back (attempt %d)", attempt)
		}

		return wb.writer.WriteCells(ctx, updates)
	})
	if err != nil {
		return report, fmt.Errorf("writing %d coordinates: %w", len(pending), err)
	}

	wb.ledger.Mark(pending...)
	report.Written = len(pending)

	return report, nil
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
