// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/spatial"
	"github.com/pinmap/pinmap/utils/retry"
	"golang.org/x/time/rate"
)

// Status is the final state of one address resolution.
type Status string

const (
	StatusFound       Status = "found"
	StatusNotFound    Status = "not_found"
	StatusOutOfRegion Status = "out_of_region"
	StatusFailed      Status = "failed"
)

// Outcome is what Resolve returns for an address. Only StatusFound carries a
// Point, and that point is inside the resolver's region.
type Outcome struct {
	Query    string
	Point    *spatial.Point
	Status   Status
	Provider string
	Cached   bool
	Attempts int
	Err      error
}

// Resolved reports whether the outcome carries a valid coordinate.
func (o Outcome) Resolved() bool {
	return o.Status == StatusFound && o.Point != nil
}

const (
	// DefaultRate is the public Nominatim usage limit.
	DefaultRate = rate.Limit(1)
	// DefaultOutageThreshold is the number of consecutive provider failures
	// after which the provider is considered down for the batch.
	DefaultOutageThreshold = 5
)

// DefaultRetryPolicy makes 3 attempts with 1s, 2s... up to 4s between them.
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
		Multiplier:  2,
	}
}

// Options configures a Resolver. Zero fields take defaults.
type Options struct {
	Region spatial.Region

	// Rate and Burst configure the limiter shared by every outbound call,
	// retries included. Use rate.Inf to disable.
	Rate  rate.Limit
	Burst int

	Retry           retry.Policy
	OutageThreshold int

	Cache   Cache
	Metrics *Metrics
}

// Resolver turns canonical addresses into validated coordinates. It owns the
// rate limiter and the cache, so one Resolver should be built per execution
// context and reused for all its batches.
type Resolver struct {
	geocoder        Geocoder
	region          spatial.Region
	limiter         *rate.Limiter
	policy          retry.Policy
	outageThreshold int
	cache           Cache
	metrics         *Metrics

	mu sync.Mutex
	// failed remembers exhausted transient failures until the next batch.
	failed      map[string]Outcome
	consecutive int
	down        bool
	calls       int
}

// NewResolver creates a resolver around g.
func NewResolver(g Geocoder, opts Options) *Resolver {
	if opts.Region == (spatial.Region{}) {
		opts.Region = spatial.DefaultRegion
	}

	if opts.Rate == 0 {
		opts.Rate = DefaultRate
	}

	if opts.Burst < 1 {
		opts.Burst = 1
	}

	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	if opts.OutageThreshold < 1 {
		opts.OutageThreshold = DefaultOutageThreshold
	}

	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}

	return &Resolver{
		geocoder:        g,
		region:          opts.Region,
		limiter:         rate.NewLimiter(opts.Rate, opts.Burst),
		policy:          opts.Retry,
		outageThreshold: opts.OutageThreshold,
		cache:           opts.Cache,
		metrics:         opts.Metrics,
		failed:          make(map[string]Outcome),
	}
}

// Region returns the validity region results are checked against.
func (r *Resolver) Region() spatial.Region {
	return r.region
}

// Calls returns the number of outbound provider calls made so far.
func (r *Resolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}

// BeginBatch forgets transient failures and closes the outage breaker. The
// cache is kept.
func (r *Resolver) BeginBatch() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failed = make(map[string]Outcome)
	r.consecutive = 0
	r.down = false
}

// Resolve looks up address. It never returns an error: failures are reported
// through the outcome status.
func (r *Resolver) Resolve(ctx context.Context, address string) Outcome {
	query := dataset.NormalizeAddress(address)
	key := dataset.CacheKey(query)

	if key == "" {
		return r.finish(Outcome{Query: query, Status: StatusNotFound, Err: errors.New("empty address")})
	}

	if e, ok := r.cache.Get(ctx, key); ok {
		r.metrics.cache(true)

		out := r.fromEntry(query, e)
		out.Cached = true

		return r.finish(out)
	}

	r.metrics.cache(false)

	r.mu.Lock()
	if prev, ok := r.failed[key]; ok {
		r.mu.Unlock()

		prev.Cached = true

		return r.finish(prev)
	}

	if r.down {
		r.mu.Unlock()

		return r.finish(Outcome{Query: query, Status: StatusFailed, Err: ErrProviderDown})
	}
	r.mu.Unlock()

	out, raw := r.lookup(ctx, query)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch out.Status {
	case StatusFailed:
		if countsTowardsOutage(out.Err) {
			r.consecutive++
			if r.consecutive >= r.outageThreshold && !r.down {
				r.down = true
				r.metrics.trip()
				log.Printf("⚠️ geocoder failed %d times in a row, skipping remaining addresses: %v", r.consecutive, out.Err)
			}
		}

		r.failed[key] = out
	default:
		r.consecutive = 0

		r.cache.Set(ctx, key, &Entry{
			Query:      query,
			Point:      raw,
			Provider:   out.Provider,
			ResolvedAt: time.Now().UTC(),
		})
	}

	return r.finish(out)
}

// ErrProviderDown marks outcomes skipped because the provider kept failing.
var ErrProviderDown = errors.New("geocoding provider unavailable")

func (r *Resolver) finish(o Outcome) Outcome {
	r.metrics.outcome(o.Status)

	return o
}

func countsTowardsOutage(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	t, ok := typeOf(err)

	return !ok || t != ErrorTypeInvalidRequest
}

func (r *Resolver) fromEntry(query string, e *Entry) Outcome {
	out := Outcome{Query: query, Provider: e.Provider}

	switch {
	case e.Point == nil:
		out.Status = StatusNotFound
	case !r.region.Contains(e.Point):
		out.Status = StatusOutOfRegion
	default:
		p := *e.Point
		out.Point = &p
		out.Status = StatusFound
	}

	return out
}

// lookup calls the provider under the limiter and retry policy. raw is the
// provider point before region validation.
func (r *Resolver) lookup(ctx context.Context, query string) (out Outcome, raw *spatial.Point) {
	var (
		res      *Result
		attempts int
	)

	err := r.policy.Do(ctx, IsTransient, func(attempt int) error {
		attempts = attempt
		if attempt > 1 {
			r.metrics.retry()
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		r.mu.Lock()
		r.calls++
		r.mu.Unlock()

		start := time.Now()

		var err error

		res, err = r.geocoder.Geocode(ctx, query, r.region)
		r.metrics.request(requestLabel(err), time.Since(start))

		return err
	})

	out = Outcome{Query: query, Attempts: attempts}

	switch {
	case err == nil && res != nil:
		p := res.Point
		raw = &p
		out.Provider = res.Provider
		out.Status = StatusOutOfRegion

		if r.region.Contains(&p) {
			found := p
			out.Point = &found
			out.Status = StatusFound
		}
	case err == nil || errors.Is(err, ErrNotFound):
		out.Status = StatusNotFound
	default:
		log.Printf("geocoding %q failed after %d attempt(s): %v", query, attempts, err)

		out.Status = StatusFailed
		out.Err = err
	}

	return out, raw
}

func requestLabel(err error) string {
	if err == nil {
		return "ok"
	}

	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}

	if t, ok := typeOf(err); ok {
		return t.String()
	}

	if IsTimeoutError(err) {
		return "timeout"
	}

	return "error"
}
