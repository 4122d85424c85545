// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/pinmap/pinmap/store"
	"github.com/spf13/cobra"
)

type dbOptions struct {
	URI   string
	Table string
}

var dbOpts = &dbOptions{}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Keeps customer tables in a local DuckDB (or PostgreSQL) database",
}

// sqlURI returns the database URI with the table selected.
func (o *dbOptions) sqlURI() string {
	if o.Table == "" {
		return o.URI
	}

	sep := "?"
	if strings.Contains(o.URI, "?") {
		sep = "&"
	}

	return o.URI + sep + "table=" + url.QueryEscape(o.Table)
}

var dbImportCmd = &cobra.Command{
	Use:   "import [source]",
	Short: "Copies a customer table into the database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(args) == 1 {
			options.Source = args[0]
		}

		r, _, err := openSource(ctx)
		if err != nil {
			return err
		}
		defer closeSource(r)

		table, err := r.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading %s: %w", options.Source, err)
		}

		s, err := store.OpenSQL(dbOpts.sqlURI())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Import(ctx, table); err != nil {
			return err
		}

		n, err := s.Count(ctx)
		if err != nil {
			return err
		}

		log.Printf("Imported %d rows from %s into %s", n, options.Source, dbOpts.URI)

		return nil
	},
}

var dbListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the tables of the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		s, err := store.OpenSQL(dbOpts.URI)
		if err != nil {
			return err
		}
		defer s.Close()

		tables, err := s.Tables(ctx)
		if err != nil {
			return err
		}

		a, b := strings.Repeat("─", 30), strings.Repeat("─", 8)
		fmt.Printf("╭─%-30s─┬─%8s─╮\n", a, b)
		fmt.Printf("│ %-30s │ %8s │\n", "Table", "Rows")
		fmt.Printf("├─%-30s─┼─%8s─┤\n", a, b)

		for _, t := range tables {
			n, err := store.NewSQLStore(s.DB(), t).Count(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("│ %-30s │ %8d │\n", t, n)
		}

		fmt.Printf("╰─%-30s─┴─%8s─╯\n", a, b)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbImportCmd)
	dbCmd.AddCommand(dbListCmd)
	dbCmd.PersistentFlags().StringVar(&dbOpts.URI, "db", "duckdb://pinmap.duckdb", "Database URI (duckdb://<file> or postgres://...)")
	dbImportCmd.Flags().StringVar(&dbOpts.Table, "table", store.DefaultTable, "Destination table")
}
