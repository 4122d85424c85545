// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"log"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/geocoding"
	"github.com/pinmap/pinmap/pipeline"
	"github.com/schollz/progressbar/v3"
)

// progressObserver draws a progress bar on terminals and logs failed
// addresses otherwise.
func progressObserver(description string) pipeline.Observer {
	tty := isatty.IsTerminal(os.Stderr.Fd())

	var bar *progressbar.ProgressBar

	return func(done, total int, rec *dataset.Record, out geocoding.Outcome) {
		if !tty {
			if !out.Resolved() {
				log.Printf("%d/%d row %d %q: %s", done, total, rec.Row+1, rec.FullAddress, out.Status)
			}

			return
		}

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(description),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		if err := bar.Add(1); err != nil {
			log.Printf("updating progress bar: %v", err)
		}
	}
}
