package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// LoadCSVFile reads a delimited text file whose first row is the header.
func LoadCSVFile(ctx context.Context, path string, delimiter rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()

	return ReadCSV(ctx, f, delimiter)
}

// ReadCSV reads delimited text from r. Rows may have fewer fields than the
// header; missing trailing cells are empty.
func ReadCSV(ctx context.Context, r io.Reader, delimiter rune) (*Table, error) {
	reader := csv.NewReader(r)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("csv: missing header row")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	t := &Table{Columns: header}
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", len(t.Rows)+1)
		}
		if len(record) > len(header) {
			return nil, eris.Errorf("csv: row %d has %d fields, header has %d", len(t.Rows)+1, len(record), len(header))
		}
		t.Rows = append(t.Rows, record)
	}

	return t, nil
}
