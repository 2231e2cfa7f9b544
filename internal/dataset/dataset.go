// Package dataset loads the static service dataset from delimited text,
// XLSX, SQLite or Postgres into a positional table of text cells.
package dataset

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// Table is a header plus rows of raw cells. Row order is the dataset order
// and is the alignment key for everything derived from it.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named column, or -1. Names are
// compared under NFC so composed and decomposed accents match.
func (t *Table) Index(name string) int {
	want := norm.NFC.String(name)
	for i, c := range t.Columns {
		if norm.NFC.String(c) == want {
			return i
		}
	}
	return -1
}

// Column returns the cells of the named column.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, eris.Errorf("dataset: column %q not found", name)
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, nil
}

// Options tunes how a location is read.
type Options struct {
	Table     string // table name for SQLite / Postgres sources
	Delimiter rune   // delimited text sources, default ','
}

// Load reads the dataset at location. The source kind is chosen from the
// location: postgres:// URLs, .xlsx workbooks, .db/.sqlite/.sqlite3 files,
// and delimited text for everything else.
func Load(ctx context.Context, location string, opts Options) (*Table, error) {
	if location == "" {
		return nil, eris.New("dataset: location is empty")
	}
	if opts.Table == "" {
		opts.Table = "services"
	}

	var (
		t   *Table
		err error
	)
	switch kindOf(location) {
	case kindPostgres:
		t, err = LoadPostgresURL(ctx, location, opts.Table)
	case kindXLSX:
		t, err = LoadXLSX(location)
	case kindSQLite:
		t, err = LoadSQLite(ctx, location, opts.Table)
	default:
		t, err = LoadCSVFile(ctx, location, opts.Delimiter)
	}
	if err != nil {
		return nil, err
	}

	t.normalizeHeader()
	return t, nil
}

type sourceKind int

const (
	kindCSV sourceKind = iota
	kindXLSX
	kindSQLite
	kindPostgres
)

func kindOf(location string) sourceKind {
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return kindPostgres
	}
	switch filepath.Ext(lower) {
	case ".xlsx":
		return kindXLSX
	case ".db", ".sqlite", ".sqlite3":
		return kindSQLite
	default:
		return kindCSV
	}
}

// normalizeHeader strips a UTF-8 BOM from the first header cell and pads
// short rows so every row has one cell per column.
func (t *Table) normalizeHeader() {
	if len(t.Columns) > 0 {
		t.Columns[0] = strings.TrimPrefix(t.Columns[0], "\ufeff")
	}
	for i, row := range t.Rows {
		if len(row) < len(t.Columns) {
			padded := make([]string, len(t.Columns))
			copy(padded, row)
			t.Rows[i] = padded
		}
	}
}
