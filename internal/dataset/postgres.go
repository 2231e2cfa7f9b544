package dataset

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Querier is the subset of pgxpool.Pool used to read the dataset.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadPostgresURL connects to connString and reads table.
func LoadPostgresURL(ctx context.Context, connString, table string) (*Table, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	defer pool.Close()

	return LoadPostgres(ctx, pool, table)
}

// LoadPostgres reads every row of table through q. table may be
// schema-qualified ("public.services").
func LoadPostgres(ctx context.Context, q Querier, table string) (*Table, error) {
	ident := pgx.Identifier(splitQualified(table)).Sanitize()

	rows, err := q.Query(ctx, "SELECT * FROM "+ident)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", table)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	t := &Table{Columns: make([]string, len(fields))}
	for i, fd := range fields {
		t.Columns[i] = fd.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: row values")
		}
		t.Rows = append(t.Rows, cellsOf(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rows")
	}

	return t, nil
}

func splitQualified(name string) []string {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return []string{schema, table}
	}
	return []string{name}
}
