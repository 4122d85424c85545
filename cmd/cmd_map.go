// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/mapview"
	"github.com/pinmap/pinmap/pipeline"
	"github.com/pinmap/pinmap/store"
	"github.com/spf13/cobra"
)

type mapOptions struct {
	Output     string
	ExportCSV  string
	ExportXLSX string
	NoGeocode  bool
	WriteBack  bool
	Resolution int
	Title      string
}

var mapOpts = &mapOptions{}

var mapCmd = &cobra.Command{
	Use:   "map [source]",
	Short: "Geocodes a customer table and renders it as an HTML map",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			options.Source = args[0]
		}

		if options.Source == "" {
			return errors.New("no source given (argument, --source or PINMAP_SOURCE)")
		}

		return runMap(cmd.Context())
	},
}

// openSource returns the reader of --source and its writer when the source
// can be written.
func openSource(ctx context.Context) (store.Reader, store.Writer, error) {
	r, err := store.Open(ctx, options.Source, options.storeOptions())
	if err != nil {
		return nil, nil, err
	}

	w, _ := r.(store.Writer)

	return r, w, nil
}

func closeSource(r store.Reader) {
	if c, ok := r.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("closing source: %v", err)
		}
	}
}

func runMap(ctx context.Context) error {
	region, err := options.region()
	if err != nil {
		return err
	}

	r, w, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource(r)

	table, err := r.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading %s: %w", options.Source, err)
	}

	records, layout, err := dataset.Load(table, dataset.DefaultColumns)
	if err != nil {
		return err
	}

	log.Printf("Loaded %d rows from %s", len(records), options.Source)

	popts := pipeline.Options{
		Region:   region,
		MaxBatch: options.MaxBatch,
		Rescale:  options.Rescale,
		Geocode:  !mapOpts.NoGeocode,
		Observer: progressObserver("Geocoding"),
	}

	var resolver pipeline.Resolver

	if popts.Geocode {
		res, err := options.newResolver(ctx, region, nil)
		if err != nil {
			return err
		}

		if res == nil {
			popts.Geocode = false
		} else {
			resolver = res
		}
	}

	result, err := pipeline.Run(ctx, records, resolver, popts)
	if err != nil {
		return err
	}

	log.Printf("✅ %s", result.Summary())

	if result.OverCap > 0 {
		log.Printf("⚠️ %d addresses left for the next run (--max-batch %d)", result.OverCap, popts.MaxBatch)
	}

	var errs []error

	if mapOpts.WriteBack {
		wb := pipeline.NewWriteBacker(w, layout, nil, pipeline.DefaultWritePolicy())

		report, err := wb.WriteBack(ctx, result.Delta)
		if err != nil {
			// the map is still rendered from the in-memory data
			errs = append(errs, fmt.Errorf("write-back: %w", err))
		} else {
			log.Printf("💾 wrote %d coordinates back to %s", report.Written, options.Source)
		}
	}

	if err := writeOutput(mapOpts.Output, func(out io.Writer) error {
		return mapview.Render(out, records, mapview.Options{
			Region:     region,
			Title:      mapOpts.Title,
			Resolution: mapOpts.Resolution,
			Message:    result.Summary(),
		})
	}); err != nil {
		errs = append(errs, err)
	}

	if mapOpts.ExportCSV != "" {
		errs = append(errs, writeOutput(mapOpts.ExportCSV, func(out io.Writer) error {
			return dataset.WriteCSV(out, records)
		}))
	}

	if mapOpts.ExportXLSX != "" {
		errs = append(errs, writeOutput(mapOpts.ExportXLSX, func(out io.Writer) error {
			return dataset.WriteXLSX(out, records)
		}))
	}

	return errors.Join(errs...)
}

// writeOutput writes to path, or stdout when path is "-".
func writeOutput(path string, fn func(io.Writer) error) error {
	if path == "-" {
		return fn(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := fn(f); err != nil {
		f.Close()

		return fmt.Errorf("writing %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return err
	}

	log.Printf("Wrote %s", path)

	return nil
}

func init() {
	rootCmd.AddCommand(mapCmd)

	f := mapCmd.Flags()
	f.StringVarP(&mapOpts.Output, "output", "o", "map.html", "HTML map file, - for stdout")
	f.StringVar(&mapOpts.ExportCSV, "export-csv", "", "Also write the enriched rows as CSV")
	f.StringVar(&mapOpts.ExportXLSX, "export-xlsx", "", "Also write the enriched rows as XLSX")
	f.BoolVar(&mapOpts.NoGeocode, "no-geocode", false, "Only show rows that already have coordinates")
	f.BoolVar(&mapOpts.WriteBack, "write-back", false, "Store newly resolved coordinates in the source")
	f.IntVar(&mapOpts.Resolution, "h3-resolution", mapview.DefaultResolution, "Resolution of the hexagon layer, -1 to disable")
	f.StringVar(&mapOpts.Title, "title", "", "Page title")
}
