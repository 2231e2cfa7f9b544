package dataset

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/purchase-predictor/internal/scalar"
)

// LoadSQLite reads every row of table from the SQLite database at path.
func LoadSQLite(ctx context.Context, path, table string) (*Table, error) {
	// sql.Open would silently create an empty database.
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "sqlite: stat %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: columns")
	}

	t := &Table{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		t.Rows = append(t.Rows, cellsOf(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate rows")
	}

	return t, nil
}

// cellsOf renders driver values as text cells.
func cellsOf(vals []any) []string {
	cells := make([]string, len(vals))
	for i, v := range vals {
		cells[i] = scalar.Normalize(v).Text()
	}
	return cells
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
