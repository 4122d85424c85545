// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"log"

	"github.com/pinmap/pinmap/pipeline"
	"github.com/pinmap/pinmap/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the interactive map, upload and export endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		region, err := options.region()
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		res, err := options.newResolver(ctx, region, reg)
		if err != nil {
			return err
		}

		var resolver pipeline.Resolver
		if res != nil {
			resolver = res
		}

		server := web.NewServer(resolver, web.Config{
			Region:       region,
			MaxBatch:     options.MaxBatch,
			Rescale:      options.Rescale,
			Source:       options.Source,
			StoreOptions: options.storeOptions(),
			Gatherer:     reg,
		})
		defer server.Close()

		if options.Source != "" {
			r, w, err := openSource(ctx)
			if err == nil {
				_, err = server.Load(ctx, options.Source, r, w)
			}

			if err != nil {
				log.Printf("⚠️ could not load %s: %v", options.Source, err)
			}
		}

		return server.Run(serveAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Listen address")
}
