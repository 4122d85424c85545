// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pinmap/pinmap/geocoding"
	"github.com/pinmap/pinmap/spatial"
	"github.com/pinmap/pinmap/store"
	"github.com/pinmap/pinmap/utils/httputils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// Geocoder names accepted by --geocoder.
const (
	geocoderNominatim = "nominatim"
	geocoderGoogle    = "google"
	geocoderNone      = "none"
)

// googleRate stays well under the Maps API per-second quota.
const googleRate = rate.Limit(10)

type pinmapOptions struct {
	Source      string
	Sheet       string
	Charset     string
	Credentials string
	Region      string
	Geocoder    string
	Endpoint    string
	GoogleKey   string
	GCPProject  string
	UserAgent   string
	RedisURL    string
	MaxBatch    int
	Rescale     bool
	Timeout     time.Duration
	Trace       bool
}

var options = &pinmapOptions{}

// envFlags maps persistent flags to the environment variables that default
// them.
var envFlags = map[string]string{
	"source":      "PINMAP_SOURCE",
	"sheet":       "PINMAP_SHEET",
	"region":      "PINMAP_REGION",
	"geocoder":    "PINMAP_GEOCODER",
	"user-agent":  "PINMAP_USER_AGENT",
	"credentials": "PINMAP_SHEETS_CREDENTIALS",
	"google-key":  "GOOGLE_MAPS_API_KEY",
	"gcp-project": "GOOGLE_CLOUD_PROJECT",
	"redis":       "REDIS_URL",
}

// loadEnv reads .env when present and fills every flag the command line did
// not set from its environment variable.
func loadEnv(cmd *cobra.Command) error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring .env: %v", err)
	}

	var errs []error

	for name, env := range envFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil || f.Changed {
			continue
		}

		if v := os.Getenv(env); v != "" {
			if err := f.Value.Set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", env, err))
			}
		}
	}

	return errors.Join(errs...)
}

func (o *pinmapOptions) region() (spatial.Region, error) {
	if o.Region == "" {
		return spatial.DefaultRegion, nil
	}

	return spatial.ParseRegion(o.Region)
}

func (o *pinmapOptions) userAgent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}

	return fmt.Sprintf("pinmap/%s (+https://github.com/pinmap/pinmap)", Version)
}

func (o *pinmapOptions) httpClient(userAgent string) *http.Client {
	copts := httputils.ClientOptions{Timeout: o.Timeout, UserAgent: userAgent}
	if o.Trace {
		copts.Trace = os.Stderr
	}

	return httputils.NewClient(copts)
}

func (o *pinmapOptions) storeOptions() store.Options {
	return store.Options{
		HTTPClient:      o.httpClient(store.BrowserUserAgent),
		Charset:         o.Charset,
		Sheet:           o.Sheet,
		CredentialsFile: o.Credentials,
	}
}

// newGeocoder returns the configured provider and its request rate, or nil
// when geocoding is disabled.
func (o *pinmapOptions) newGeocoder(ctx context.Context) (geocoding.Geocoder, rate.Limit, error) {
	client := o.httpClient(o.userAgent())

	switch strings.ToLower(o.Geocoder) {
	case "", geocoderNominatim:
		log.Println("📍 Geocoding: OpenStreetMap Nominatim")

		return geocoding.NewNominatimGeocoder(o.Endpoint, client), geocoding.DefaultRate, nil
	case geocoderGoogle:
		key := o.GoogleKey
		if key == "" {
			log.Println("GOOGLE_MAPS_API_KEY is not set. Attempting to retrieve via ADC...")

			var err error

			key, err = geocoding.APIKeyFromADC(ctx, o.GCPProject, geocoding.DefaultKeyDisplayName)
			if err != nil {
				return nil, 0, fmt.Errorf("google geocoder needs GOOGLE_MAPS_API_KEY: %w", err)
			}

			log.Println("✅ Successfully retrieved Google Maps API Key via ADC")
		}

		g := geocoding.NewGoogleMapsGeocoder(key, client)
		if o.Endpoint != "" {
			g = g.WithEndpoint(o.Endpoint)
		}

		log.Println("📍 Geocoding: Google Maps")

		return g, googleRate, nil
	case geocoderNone:
		return nil, 0, nil
	default:
		return nil, 0, fmt.Errorf("unknown geocoder %q (want %s, %s or %s)", o.Geocoder, geocoderNominatim, geocoderGoogle, geocoderNone)
	}
}

// newCache returns the Redis backed cache when configured, else a process
// local one. An unreachable Redis is not fatal.
func (o *pinmapOptions) newCache(ctx context.Context) geocoding.Cache {
	if o.RedisURL == "" {
		return geocoding.NewMemoryCache()
	}

	client, err := geocoding.OpenRedis(ctx, o.RedisURL)
	if err != nil {
		log.Printf("⚠️ geocode cache falls back to memory: %v", err)

		return geocoding.NewMemoryCache()
	}

	return geocoding.NewRedisCache(client, nil, 0)
}

// newResolver builds the resolver, or returns nil when geocoding is
// disabled.
func (o *pinmapOptions) newResolver(ctx context.Context, region spatial.Region, reg prometheus.Registerer) (*geocoding.Resolver, error) {
	g, limit, err := o.newGeocoder(ctx)
	if err != nil || g == nil {
		return nil, err
	}

	var metrics *geocoding.Metrics
	if reg != nil {
		metrics = geocoding.NewMetrics(reg)
	}

	return geocoding.NewResolver(g, geocoding.Options{
		Region:  region,
		Rate:    limit,
		Cache:   o.newCache(ctx),
		Metrics: metrics,
	}), nil
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&options.Source, "source", "", "Customer table: file, https URL, sheets://<id>[/<sheet>], duckdb:// or postgres:// URI")
	f.StringVar(&options.Sheet, "sheet", "", "Worksheet of XLSX files and Google spreadsheets")
	f.StringVar(&options.Charset, "charset", "", "Text encoding of CSV sources, e.g. windows-1250")
	f.StringVar(&options.Credentials, "credentials", "", "Service account JSON for Google Sheets (default: application default credentials)")
	f.StringVar(&options.Region, "region", "", "Validity region minLat,minLng,maxLat,maxLng (default: Czechia and Poland)")
	f.StringVar(&options.Geocoder, "geocoder", geocoderNominatim, "Geocoding provider: nominatim, google or none")
	f.StringVar(&options.Endpoint, "geocoder-endpoint", "", "Override the geocoder URL")
	f.StringVar(&options.GoogleKey, "google-key", "", "Google Maps API key")
	f.StringVar(&options.GCPProject, "gcp-project", "", "Project holding the Maps API key when no key is given")
	f.StringVar(&options.UserAgent, "user-agent", "", "User-Agent sent to the geocoder")
	f.StringVar(&options.RedisURL, "redis", "", "Redis URL of the shared geocode cache")
	f.IntVar(&options.MaxBatch, "max-batch", 300, "Maximum number of addresses geocoded per run")
	f.BoolVar(&options.Rescale, "rescale", false, "Repair coordinates that lost their decimal point")
	f.DurationVar(&options.Timeout, "timeout", 10*time.Second, "Timeout of every outbound HTTP request")
	f.BoolVar(&options.Trace, "trace", false, "Log every outbound HTTP request")
}
