// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pinmap/pinmap/spatial"
	"github.com/pinmap/pinmap/utils/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeGeocoder answers from a table and counts calls per query.
type fakeGeocoder struct {
	mu      sync.Mutex
	answers map[string][]fakeAnswer
	calls   map[string]int
	times   []time.Time
}

type fakeAnswer struct {
	point *spatial.Point
	err   error
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{answers: map[string][]fakeAnswer{}, calls: map[string]int{}}
}

// on queues answers for query; the last one repeats.
func (f *fakeGeocoder) on(query string, answers ...fakeAnswer) *fakeGeocoder {
	f.answers[query] = answers

	return f
}

func (f *fakeGeocoder) Geocode(_ context.Context, query string, _ spatial.Region) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls[query]
	f.calls[query]++
	f.times = append(f.times, time.Now())

	answers, ok := f.answers[query]
	if !ok {
		return nil, fmt.Errorf("%q: %w", query, ErrNotFound)
	}

	if n >= len(answers) {
		n = len(answers) - 1
	}

	a := answers[n]
	if a.err != nil {
		return nil, a.err
	}

	return &Result{Point: *a.point, Provider: "fake"}, nil
}

func (f *fakeGeocoder) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.times)
}

func found(lat, lng float64) fakeAnswer {
	return fakeAnswer{point: &spatial.Point{Lat: lat, Lng: lng}}
}

var errTimeout = &GeocodingError{Type: ErrorTypeTimeout, Message: "timed out"}

func testOptions() Options {
	return Options{
		Region: spatial.DefaultRegion,
		Rate:   rate.Inf,
		Retry: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
	}
}

func TestResolveFound(t *testing.T) {
	g := newFakeGeocoder().on("Main 1, Brno 60200", found(49.20, 16.61))
	r := NewResolver(g, testOptions())

	out := r.Resolve(context.Background(), "Main 1, Brno 60200")

	require.True(t, out.Resolved())
	assert.Equal(t, StatusFound, out.Status)
	assert.Equal(t, &spatial.Point{Lat: 49.20, Lng: 16.61}, out.Point)
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.Cached)
}

func TestResolveCachesByCanonicalAddress(t *testing.T) {
	g := newFakeGeocoder().on("Main 1, Brno 60200", found(49.20, 16.61))
	r := NewResolver(g, testOptions())
	ctx := context.Background()

	first := r.Resolve(ctx, "Main 1, Brno 60200")
	second := r.Resolve(ctx, "  main 1,  BRNO 60200 ")

	assert.Equal(t, 1, g.total(), "equivalent addresses must share one provider call")
	assert.Equal(t, first.Point, second.Point)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, r.Calls())
}

func TestResolveCachesNotFound(t *testing.T) {
	g := newFakeGeocoder()
	r := NewResolver(g, testOptions())
	ctx := context.Background()

	assert.Equal(t, StatusNotFound, r.Resolve(ctx, "Nowhere 1").Status)

	r.BeginBatch()
	assert.Equal(t, StatusNotFound, r.Resolve(ctx, "Nowhere 1").Status)
	assert.Equal(t, 1, g.total())
}

func TestResolveOutOfRegionIsUnresolved(t *testing.T) {
	g := newFakeGeocoder().on("Main 1, Paris", found(48.85, 2.35))
	r := NewResolver(g, testOptions())

	out := r.Resolve(context.Background(), "Main 1, Paris")

	assert.Equal(t, StatusOutOfRegion, out.Status)
	assert.Nil(t, out.Point)
	assert.NoError(t, out.Err)
	assert.False(t, out.Resolved())

	again := r.Resolve(context.Background(), "Main 1, Paris")
	assert.Equal(t, StatusOutOfRegion, again.Status)
	assert.Nil(t, again.Point)
	assert.Equal(t, 1, g.total())
}

func TestResolveRetriesTransientErrors(t *testing.T) {
	g := newFakeGeocoder().on("Main 1, Brno 60200",
		fakeAnswer{err: errTimeout},
		fakeAnswer{err: ClassifyHTTPError(503, "")},
		found(49.20, 16.61),
	)
	r := NewResolver(g, testOptions())

	out := r.Resolve(context.Background(), "Main 1, Brno 60200")

	require.True(t, out.Resolved())
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, g.total())
}

func TestResolveTimeoutsExhaustRetries(t *testing.T) {
	g := newFakeGeocoder().
		on("Slow 1, Brno", fakeAnswer{err: errTimeout}).
		on("Main 1, Brno 60200", found(49.20, 16.61))
	r := NewResolver(g, testOptions())
	ctx := context.Background()

	slow := r.Resolve(ctx, "Slow 1, Brno")
	assert.Equal(t, StatusFailed, slow.Status)
	assert.Equal(t, 3, slow.Attempts)
	require.ErrorIs(t, slow.Err, errTimeout)

	ok := r.Resolve(ctx, "Main 1, Brno 60200")
	assert.True(t, ok.Resolved(), "one failing address must not affect the others")

	// Remembered for the batch.
	assert.Equal(t, StatusFailed, r.Resolve(ctx, "Slow 1, Brno").Status)
	assert.Equal(t, 4, g.total())

	// Retried in the next batch.
	r.BeginBatch()
	r.Resolve(ctx, "Slow 1, Brno")
	assert.Equal(t, 7, g.total())
}

func TestResolveDoesNotRetryPermanentErrors(t *testing.T) {
	g := newFakeGeocoder().on("Main 1", fakeAnswer{err: ClassifyHTTPError(403, "")})
	r := NewResolver(g, testOptions())

	out := r.Resolve(context.Background(), "Main 1")

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, IsQuotaExceededError(out.Err))
}

func TestResolveOutageStopsCallingProvider(t *testing.T) {
	g := newFakeGeocoder()
	down := GeocoderFunc(func(ctx context.Context, q string, reg spatial.Region) (*Result, error) {
		_, _ = g.Geocode(ctx, q, reg)

		return nil, ClassifyHTTPError(502, "")
	})

	opts := testOptions()
	opts.OutageThreshold = 2
	r := NewResolver(down, opts)
	ctx := context.Background()

	var statuses []Status
	for i := range 5 {
		statuses = append(statuses, r.Resolve(ctx, fmt.Sprintf("Street %d, Brno", i)).Status)
	}

	assert.Equal(t, []Status{StatusFailed, StatusFailed, StatusFailed, StatusFailed, StatusFailed}, statuses)
	assert.Equal(t, 6, g.total(), "two addresses x three attempts, then the breaker opens")

	last := r.Resolve(ctx, "Street 9, Brno")
	require.ErrorIs(t, last.Err, ErrProviderDown)
}

func TestResolveRateLimitSharedAcrossRetries(t *testing.T) {
	g := newFakeGeocoder().
		on("A 1", fakeAnswer{err: errTimeout}, found(49.2, 16.6)).
		on("B 2", found(50.0, 14.4))

	opts := testOptions()
	opts.Rate = rate.Every(40 * time.Millisecond)
	r := NewResolver(g, opts)
	ctx := context.Background()

	r.Resolve(ctx, "A 1")
	r.Resolve(ctx, "B 2")

	require.Len(t, g.times, 3)

	for i := 1; i < len(g.times); i++ {
		gap := g.times[i].Sub(g.times[i-1])
		assert.GreaterOrEqual(t, gap, 30*time.Millisecond, "call %d came %v after the previous one", i, gap)
	}
}

func TestResolveEmptyAddress(t *testing.T) {
	g := newFakeGeocoder()
	r := NewResolver(g, testOptions())

	out := r.Resolve(context.Background(), " , ")

	assert.Equal(t, StatusNotFound, out.Status)
	assert.Equal(t, 0, g.total())
}

func TestResolveCachedEntryRevalidatedAgainstRegion(t *testing.T) {
	cache := NewMemoryCache()
	cache.Set(context.Background(), "main 1, brno 60200", &Entry{
		Query: "Main 1, Brno 60200",
		Point: &spatial.Point{Lat: 49.2, Lng: 16.61},
	})

	opts := testOptions()
	opts.Cache = cache
	opts.Region = spatial.Region{MinLat: 50, MaxLat: 51, MinLng: 14, MaxLng: 15}

	g := newFakeGeocoder()
	out := NewResolver(g, opts).Resolve(context.Background(), "Main 1, Brno 60200")

	assert.Equal(t, StatusOutOfRegion, out.Status)
	assert.True(t, out.Cached)
	assert.Equal(t, 0, g.total())
}

func TestResolverMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	g := newFakeGeocoder().on("Main 1, Brno 60200", found(49.20, 16.61))
	opts := testOptions()
	opts.Metrics = m
	r := NewResolver(g, opts)

	r.Resolve(context.Background(), "Main 1, Brno 60200")
	r.Resolve(context.Background(), "Main 1, Brno 60200")

	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheHits), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheMisses), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("ok")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Outcomes.WithLabelValues(string(StatusFound))), 0)
}

func TestRedisCacheFallsBackToLocal(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedisCache(client, nil, 0)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	e := &Entry{Query: "Main 1", Point: &spatial.Point{Lat: 49, Lng: 16}}
	c.Set(ctx, "main 1", e)

	got, ok := c.Get(ctx, "main 1")
	require.True(t, ok)
	assert.Equal(t, e, got)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", &Entry{Query: "q"})

	e, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "q", e.Query)
	assert.Equal(t, 1, c.Len())
	assert.Len(t, c.Entries(), 1)
}
