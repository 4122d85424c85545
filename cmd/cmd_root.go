// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

var rootCmd = &cobra.Command{
	Use:   "pinmap",
	Short: "customer maps from spreadsheets",
	Long: `
pinmap reads a customer table from a file, a published spreadsheet, Google
Sheets or a SQL database, geocodes the addresses that have no coordinates and
renders every customer on a clustered map. Resolved coordinates can be written
back to the source so the next run does not geocode them again.

Settings can also come from the environment or a .env file: PINMAP_SOURCE,
PINMAP_SHEET, PINMAP_REGION, PINMAP_GEOCODER, PINMAP_USER_AGENT,
PINMAP_SHEETS_CREDENTIALS, GOOGLE_MAPS_API_KEY, GOOGLE_CLOUD_PROJECT and
REDIS_URL.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadEnv(cmd)
	},
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
