// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package web serves the customer map and its JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/pipeline"
	"github.com/pinmap/pinmap/spatial"
	"github.com/pinmap/pinmap/store"
	"github.com/pinmap/pinmap/utils/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PreviewRows is the number of rows returned by /api/preview.
const PreviewRows = 50

var (
	// ErrNoData is returned when an operation needs a loaded dataset.
	ErrNoData = errors.New("no dataset loaded")

	// ErrGeocodeInProgress rejects a second geocoding run on one dataset.
	ErrGeocodeInProgress = errors.New("geocoding already in progress")

	// ErrReplaced is returned by a geocoding run whose dataset was replaced
	// before it finished. Its results are discarded.
	ErrReplaced = errors.New("dataset replaced while geocoding")
)

// Config configures a Server.
type Config struct {
	Region   spatial.Region
	MaxBatch int
	Rescale  bool
	Columns  dataset.ColumnMap

	// Source is the URI loaded by /api/load-source when the request names
	// none.
	Source       string
	StoreOptions store.Options

	WritePolicy retry.Policy
	Gatherer    prometheus.Gatherer
}

// session is the dataset currently shown. Every session records its own
// write-backs: loading another source starts from an empty ledger.
type session struct {
	name      string
	table     *dataset.Table
	records   []*dataset.Record
	layout    dataset.Layout
	result    *pipeline.Result
	writer    *pipeline.WriteBacker
	closer    io.Closer
	geocoding bool
}

// Server holds one dataset at a time and the resolver shared by every
// geocoding run.
type Server struct {
	cfg      Config
	resolver pipeline.Resolver

	mu      sync.Mutex
	current *session
}

// NewServer creates a server geocoding with resolver. A nil resolver
// disables geocoding; coordinates already in the data are still shown.
func NewServer(resolver pipeline.Resolver, cfg Config) *Server {
	if cfg.Region == (spatial.Region{}) {
		cfg.Region = spatial.DefaultRegion
	}

	if cfg.Columns.Street == nil {
		cfg.Columns = dataset.DefaultColumns
	}

	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:      cfg,
		resolver: resolver,
	}
}

// Handler returns the router with every route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = 32 << 20

	r.GET("/", s.mapView)
	r.GET("/api/summary", s.getSummary)
	r.GET("/api/points", s.listPoints)
	r.GET("/api/cells", s.listCells)
	r.GET("/api/preview", s.getPreview)
	r.POST("/api/upload", s.upload)
	r.POST("/api/load-source", s.loadSource)
	r.POST("/api/geocode", s.geocode)
	r.POST("/api/writeback", s.writeBack)
	r.GET("/export/:format", s.export)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))

	return r
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	log.Printf("🌍 serving map on http://%s", addr)

	return s.Handler().Run(addr)
}

// Close releases the current source.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.closer != nil {
		return s.current.closer.Close()
	}

	return nil
}

// Load reads r and makes it the current dataset. Coordinates already in the
// data are validated; nothing is geocoded. w, which may be nil, receives
// write-backs.
func (s *Server) Load(ctx context.Context, name string, r store.Reader, w store.Writer) (*pipeline.Result, error) {
	table, err := r.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	records, layout, err := dataset.Load(table, s.cfg.Columns)
	if err != nil {
		return nil, err
	}

	res, err := pipeline.Run(ctx, records, nil, s.pipelineOptions(false))
	if err != nil {
		return nil, err
	}

	next := &session{
		name:    name,
		table:   table,
		records: records,
		layout:  layout,
		result:  res,
		writer:  pipeline.NewWriteBacker(w, layout, pipeline.NewLedger(), s.cfg.WritePolicy),
	}

	if c, ok := r.(io.Closer); ok {
		next.closer = c
	}

	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if prev != nil && prev.closer != nil {
		if err := prev.closer.Close(); err != nil {
			log.Printf("closing %s: %v", prev.name, err)
		}
	}

	log.Printf("loaded %d rows from %s: %s", len(records), name, res.Summary())

	return res, nil
}

// Geocode resolves the pending rows of the current dataset. The batch runs
// on a copy of the records without holding the server lock, so the map and
// the API keep answering; the copy replaces the records when it finishes.
func (s *Server) Geocode(ctx context.Context) (*pipeline.Result, error) {
	s.mu.Lock()

	cur := s.current
	if cur == nil {
		s.mu.Unlock()

		return nil, ErrNoData
	}

	if cur.geocoding {
		s.mu.Unlock()

		return nil, ErrGeocodeInProgress
	}

	cur.geocoding = true
	records := copyRecords(cur.records)
	s.mu.Unlock()

	res, err := pipeline.Run(ctx, records, s.resolver, s.pipelineOptions(s.resolver != nil))

	s.mu.Lock()
	defer s.mu.Unlock()

	cur.geocoding = false

	if err != nil {
		return nil, err
	}

	if s.current != cur {
		return nil, fmt.Errorf("%w: %s", ErrReplaced, cur.name)
	}

	cur.records = records
	cur.result = res
	log.Printf("geocoded %s in %s: %s", cur.name, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond), res.Summary())

	return res, nil
}

// copyRecords copies the records; the pipeline replaces pointer fields
// instead of writing through them, so a shallow copy of each is enough.
func copyRecords(records []*dataset.Record) []*dataset.Record {
	out := make([]*dataset.Record, len(records))

	for i, r := range records {
		c := *r
		out[i] = &c
	}

	return out
}

// WriteBack persists every coordinate geocoded this session that the store
// has not received yet.
func (s *Server) WriteBack(ctx context.Context) (pipeline.WriteReport, error) {
	s.mu.Lock()

	if s.current == nil {
		s.mu.Unlock()

		return pipeline.WriteReport{}, ErrNoData
	}

	wb := s.current.writer

	var delta []*dataset.Record

	for _, r := range s.current.records {
		if r.Source == dataset.SourceGeocoded && r.Resolved(s.cfg.Region) {
			c := *r
			delta = append(delta, &c)
		}
	}

	s.mu.Unlock()

	return wb.WriteBack(ctx, delta)
}

func (s *Server) pipelineOptions(geocode bool) pipeline.Options {
	return pipeline.Options{
		Region:   s.cfg.Region,
		MaxBatch: s.cfg.MaxBatch,
		Geocode:  geocode,
		Rescale:  s.cfg.Rescale,
	}
}

// withSession runs fn with the current session while holding the lock.
func (s *Server) withSession(fn func(cur *session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoData
	}

	return fn(s.current)
}
