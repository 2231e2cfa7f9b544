package features

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/purchase-predictor/internal/dataset"
	"github.com/sells-group/purchase-predictor/internal/model"
	"github.com/sells-group/purchase-predictor/internal/scalar"
)

// Pipeline describes how the dataset is encoded. Categorical columns are
// one-hot encoded; Drop columns never reach the matrix.
type Pipeline struct {
	Categorical []string
	Drop        []string
}

// DefaultPipeline encodes title, description and owner and drops the
// record identifier and the training target.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Categorical: []string{model.ColumnTitle, model.ColumnDescription, model.ColumnOwner},
		Drop:        []string{model.ColumnID, model.ColumnMorePurchased},
	}
}

// column is one encoded column. Non-numeric columns keep the first cell
// that failed to parse so selecting them can report it.
type column struct {
	name    string
	values  []float64
	numeric bool
	badRow  int
	badCell string
}

type frame struct {
	rows  int
	cols  []*column
	index map[string]int
}

func newFrame(rows int) *frame {
	return &frame{rows: rows, index: make(map[string]int)}
}

func (f *frame) add(c *column) error {
	key := norm.NFC.String(c.name)
	if _, dup := f.index[key]; dup {
		return eris.Errorf("features: duplicate encoded column %q", c.name)
	}
	f.index[key] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

func (f *frame) get(name string) *column {
	i, ok := f.index[norm.NFC.String(name)]
	if !ok {
		return nil
	}
	return f.cols[i]
}

// numeric returns the values of a column that must exist and be numeric.
func (f *frame) numeric(name string) ([]float64, error) {
	c := f.get(name)
	if c == nil {
		return nil, eris.Errorf("features: column %q not found", name)
	}
	if !c.numeric {
		return nil, eris.Errorf("features: column %q row %d: %q is not numeric", name, c.badRow, c.badCell)
	}
	return c.values, nil
}

// Build runs derivation, one-hot encoding, reindexing to names and
// dropping over t. Row order is preserved throughout.
func (p Pipeline) Build(t *dataset.Table, names []string) (*Matrix, error) {
	if t == nil {
		return nil, eris.New("features: dataset is nil")
	}
	if len(names) == 0 {
		return nil, eris.New("features: feature-name list is empty")
	}

	f, err := p.encode(t)
	if err != nil {
		return nil, err
	}
	m, err := p.reindex(f, names)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("features: matrix built",
		zap.Int("rows", m.Len()),
		zap.Int("columns", m.Width()),
		zap.Int("zero_filled", m.Filled),
		zap.Int("unused", m.Unused),
	)
	return m, nil
}

func (p Pipeline) encode(t *dataset.Table) (*frame, error) {
	f := newFrame(t.Len())

	categorical := make(map[string]bool, len(p.Categorical))
	for _, name := range p.Categorical {
		if t.Index(name) < 0 {
			return nil, eris.Errorf("features: categorical column %q not found", name)
		}
		categorical[norm.NFC.String(name)] = true
	}

	for ci, name := range t.Columns {
		if categorical[norm.NFC.String(name)] {
			continue
		}
		if err := f.add(parseColumn(name, t.Rows, ci)); err != nil {
			return nil, err
		}
	}

	if err := derive(f); err != nil {
		return nil, err
	}

	for _, name := range p.Categorical {
		cells, err := t.Column(name)
		if err != nil {
			return nil, eris.Wrap(err, "features: one-hot")
		}
		for _, c := range oneHot(name, cells) {
			if err := f.add(c); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// parseColumn converts text cells to floats. Empty cells become NaN and
// booleans become 1/0.
func parseColumn(name string, rows [][]string, ci int) *column {
	c := &column{name: name, values: make([]float64, len(rows)), numeric: true}
	for r, row := range rows {
		var cell string
		if ci < len(row) {
			cell = row[ci]
		}
		v := scalar.Parse(cell)
		if v.IsNull() {
			c.values[r] = math.NaN()
			continue
		}
		x, ok := v.Float64()
		if !ok {
			if c.numeric {
				c.numeric = false
				c.badRow = r + 1
				c.badCell = cell
			}
			continue
		}
		c.values[r] = x
	}
	return c
}

func derive(f *frame) error {
	price, err := f.numeric(model.ColumnBasePrice)
	if err != nil {
		return eris.Wrap(err, "features: derive")
	}
	reviews, err := f.numeric(model.ColumnTotalReviews)
	if err != nil {
		return eris.Wrap(err, "features: derive")
	}
	stars, err := f.numeric(model.ColumnAverageStars)
	if err != nil {
		return eris.Wrap(err, "features: derive")
	}
	avail, err := f.numeric(model.ColumnAvailability)
	if err != nil {
		return eris.Wrap(err, "features: derive")
	}

	ppr := make([]float64, f.rows)
	psr := make([]float64, f.rows)
	availN := make([]float64, f.rows)
	for r := 0; r < f.rows; r++ {
		ppr[r] = price[r] / (reviews[r] + 1)
		psr[r] = price[r] / (stars[r] + 1)
		if math.IsNaN(avail[r]) || math.IsInf(avail[r], 0) {
			return eris.Errorf("features: row %d: availability cannot be cast to integer", r+1)
		}
		availN[r] = math.Trunc(avail[r])
	}

	for _, c := range []*column{
		{name: model.ColumnPricePerReview, values: ppr, numeric: true},
		{name: model.ColumnPriceStarRatio, values: psr, numeric: true},
		{name: model.ColumnAvailabilityN, values: availN, numeric: true},
	} {
		if err := f.add(c); err != nil {
			return err
		}
	}
	return nil
}

// oneHot returns one indicator column per distinct non-empty value of
// cells, named "<attribute>_<value>" and ordered by value.
func oneHot(attr string, cells []string) []*column {
	seen := make(map[string]bool)
	var values []string
	for _, v := range cells {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	slices.Sort(values)

	cols := make([]*column, len(values))
	pos := make(map[string]int, len(values))
	for i, v := range values {
		cols[i] = &column{name: attr + "_" + v, values: make([]float64, len(cells)), numeric: true}
		pos[v] = i
	}
	for r, v := range cells {
		if i, ok := pos[v]; ok {
			cols[i].values[r] = 1
		}
	}
	return cols
}

func (p Pipeline) reindex(f *frame, names []string) (*Matrix, error) {
	drop := make(map[string]bool, len(p.Drop))
	for _, name := range p.Drop {
		drop[norm.NFC.String(name)] = true
	}

	var (
		selected []*column
		columns  []string
		used     = make(map[*column]bool)
		filled   int
	)
	for _, name := range names {
		if drop[norm.NFC.String(name)] {
			continue
		}
		c := f.get(name)
		if c == nil {
			filled++
			c = &column{name: name, values: make([]float64, f.rows), numeric: true}
		} else if !c.numeric {
			return nil, eris.Errorf("features: column %q row %d: %q is not numeric", name, c.badRow, c.badCell)
		} else {
			used[c] = true
		}
		selected = append(selected, c)
		columns = append(columns, name)
	}
	if len(selected) == 0 {
		return nil, eris.New("features: no feature columns remain after dropping excluded columns")
	}

	m := &Matrix{
		Columns: columns,
		Rows:    make([][]float64, f.rows),
		Filled:  filled,
	}
	for _, c := range f.cols {
		if !used[c] && !drop[norm.NFC.String(c.name)] {
			m.Unused++
		}
	}
	for r := range m.Rows {
		row := make([]float64, len(selected))
		for j, c := range selected {
			row[j] = c.values[r]
		}
		m.Rows[r] = row
	}
	return m, nil
}
