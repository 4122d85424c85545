// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the resolver's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	Outcomes        *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	Retries         prometheus.Counter
	OutageTrips     prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pinmap_geocoder_requests_total",
			Help: "Outbound geocoder requests by result type",
		}, []string{"result"}),
		RequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pinmap_geocoder_request_duration_ms",
			Help:    "Geocoder request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pinmap_resolver_outcomes_total",
			Help: "Address resolutions by final status",
		}, []string{"status"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "pinmap_resolver_cache_hits_total",
			Help: "Resolutions answered from the cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "pinmap_resolver_cache_misses_total",
			Help: "Resolutions that needed the provider",
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "pinmap_geocoder_retries_total",
			Help: "Geocoder attempts after the first one",
		}),
		OutageTrips: f.NewCounter(prometheus.CounterOpts{
			Name: "pinmap_resolver_outage_trips_total",
			Help: "Batches in which the provider was declared down",
		}),
	}
}

func (m *Metrics) request(result string, d time.Duration) {
	if m == nil {
		return
	}

	m.Requests.WithLabelValues(result).Inc()
	m.RequestDuration.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) outcome(s Status) {
	if m == nil {
		return
	}

	m.Outcomes.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) cache(hit bool) {
	if m == nil {
		return
	}

	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) retry() {
	if m != nil {
		m.Retries.Inc()
	}
}

func (m *Metrics) trip() {
	if m != nil {
		m.OutageTrips.Inc()
	}
}
