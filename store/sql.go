// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb driver
	_ "github.com/lib/pq"              // postgres driver
	"github.com/pinmap/pinmap/dataset"
)

// DefaultTable is the table used when the URI names none.
const DefaultTable = "customers"

// rowColumn holds the stable data row position.
const rowColumn = "row_num"

// SQLStore keeps a customer table in DuckDB or PostgreSQL. Every column is
// text; row_num orders the rows. Row numbers need not be contiguous: Read
// remembers the row_num of every position it returned and WriteCells maps
// CellUpdate.Row back through it.
type SQLStore struct {
	db    *sql.DB
	table string
	owned bool

	mu     sync.Mutex
	rowIDs []any
}

// OpenSQL opens duckdb://<file>?table=<t> or postgres://...?table=<t>.
func OpenSQL(uri string) (*SQLStore, error) {
	driver, dsn, table, err := parseSQLURI(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	s := NewSQLStore(db, table)
	s.owned = true

	return s, nil
}

func parseSQLURI(uri string) (driver, dsn, table string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing %q: %w", uri, err)
	}

	q := u.Query()
	table = q.Get("table")
	q.Del("table")

	if table == "" {
		table = DefaultTable
	}

	switch u.Scheme {
	case "duckdb":
		dsn = u.Opaque
		if dsn == "" {
			dsn = u.Host + u.Path
		}

		return "duckdb", dsn, table, nil
	case "postgres", "postgresql":
		u.RawQuery = q.Encode()

		return "postgres", u.String(), table, nil
	default:
		return "", "", "", fmt.Errorf("%w: %s", ErrUnsupportedSource, uri)
	}
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if table == "" {
		table = DefaultTable
	}

	return &SQLStore{db: db, table: table}
}

// DB returns the underlying database.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database when OpenSQL opened it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}

	return s.db.Close()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Import replaces the table with t. Row numbers restart at zero.
func (s *SQLStore) Import(ctx context.Context, t *dataset.Table) error {
	cols := columnNames(t.Header)

	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, quoteIdent(rowColumn)+" INTEGER NOT NULL")

	for _, c := range cols {
		defs = append(defs, quoteIdent(c)+" VARCHAR")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s.mu.Lock()
	s.rowIDs = nil
	s.mu.Unlock()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(s.table)); err != nil {
		return fmt.Errorf("dropping %s: %w", s.table, err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(s.table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("creating %s: %w", s.table, err)
	}

	names := make([]string, 0, len(cols)+1)
	marks := make([]string, 0, len(cols)+1)

	names = append(names, quoteIdent(rowColumn))
	marks = append(marks, "$1")

	for i, c := range cols {
		names = append(names, quoteIdent(c))
		marks = append(marks, "$"+strconv.Itoa(i+2))
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(s.table), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		args := make([]any, 0, len(cols)+1)
		args = append(args, i)

		for j := range cols {
			if j < len(row) {
				args = append(args, row[j])
			} else {
				args = append(args, nil)
			}
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// columnNames makes header cells usable as column names: empty cells become
// column_N and duplicates get a numeric suffix.
func columnNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int)

	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" || strings.EqualFold(name, rowColumn) {
			name = fmt.Sprintf("column_%d", i+1)
		}

		key := strings.ToLower(name)
		if n := seen[key]; n > 0 {
			name = fmt.Sprintf("%s_%d", name, n+1)
		}

		seen[key]++
		out[i] = name
	}

	return out
}

// Read implements Reader.
func (s *SQLStore) Read(ctx context.Context) (*dataset.Table, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY %s", quoteIdent(s.table), quoteIdent(rowColumn)))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rowIdx := -1

	t := &dataset.Table{}

	for i, c := range cols {
		if c == rowColumn {
			rowIdx = i

			continue
		}

		t.Header = append(t.Header, c)
	}

	if rowIdx < 0 {
		return nil, fmt.Errorf("table %s has no %s column", s.table, rowColumn)
	}

	var ids []any

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))

		for i := range vals {
			ptrs[i] = &vals[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.table, err)
		}

		row := make([]string, 0, len(cols)-1)

		for i, v := range vals {
			if i != rowIdx {
				row = append(row, cellString(v))
			}
		}

		t.Rows = append(t.Rows, row)
		ids = append(ids, vals[rowIdx])
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.rowIDs = ids
	s.mu.Unlock()

	return t, nil
}

// positions returns the row_num of every data row position of the last Read,
// querying them when the table was not read yet.
func (s *SQLStore) positions(ctx context.Context) ([]any, error) {
	s.mu.Lock()
	ids := s.rowIDs
	s.mu.Unlock()

	if ids != nil {
		return ids, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		quoteIdent(rowColumn), quoteIdent(s.table), quoteIdent(rowColumn)))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	ids = []any{}

	for rows.Next() {
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.table, err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.rowIDs = ids
	s.mu.Unlock()

	return ids, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// WriteCells implements Writer. Missing columns are added first; the updates
// then run in one transaction.
func (s *SQLStore) WriteCells(ctx context.Context, updates []CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	positions, err := s.positions(ctx)
	if err != nil {
		return err
	}

	ids := make([]any, len(updates))

	for i, u := range updates {
		if u.Row < 0 || u.Row >= len(positions) {
			return fmt.Errorf("row %d not found in %s", u.Row, s.table)
		}

		ids[i] = positions[u.Row]
	}

	added := make(map[string]bool)

	for _, u := range updates {
		if added[u.Column] {
			continue
		}

		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s VARCHAR", quoteIdent(s.table), quoteIdent(u.Column))
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("adding column %s: %w", u.Column, err)
		}

		added[u.Column] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, u := range updates {
		q := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2", quoteIdent(s.table), quoteIdent(u.Column), quoteIdent(rowColumn))

		res, err := tx.ExecContext(ctx, q, u.Value, ids[i])
		if err != nil {
			return fmt.Errorf("updating row %d: %w", u.Row, err)
		}

		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("row %d not found in %s", u.Row, s.table)
		}
	}

	return tx.Commit()
}

// Tables lists the tables of the database.
func (s *SQLStore) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema IN ('main', 'public') ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}

		names = append(names, n)
	}

	return names, rows.Err()
}

// Count returns the number of rows in the table.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(s.table)).Scan(&n)

	return n, err
}
