package dataset

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/purchase-predictor/internal/model"
	"github.com/sells-group/purchase-predictor/internal/scalar"
)

// ParseServices converts every table row into a model.Service, keeping row
// order. All required columns must be present and numeric columns must parse.
func ParseServices(t *Table) ([]model.Service, error) {
	if t == nil {
		return nil, eris.New("dataset: nil table")
	}

	idx := make(map[string]int, len(model.RequiredColumns))
	var missing []string
	for _, name := range model.RequiredColumns {
		i := t.Index(name)
		if i < 0 {
			missing = append(missing, name)
			continue
		}
		idx[name] = i
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("dataset: missing required columns %q", missing)
	}

	services := make([]model.Service, 0, len(t.Rows))
	for r, row := range t.Rows {
		cell := func(name string) string {
			if i := idx[name]; i < len(row) {
				return row[i]
			}
			return ""
		}
		line := r + 1

		id, ok := scalar.Parse(cell(model.ColumnID)).Int64()
		if !ok {
			return nil, eris.Errorf("dataset: row %d: %s %q is not an integer", line, model.ColumnID, cell(model.ColumnID))
		}
		price, ok := scalar.Parse(cell(model.ColumnBasePrice)).Float64()
		if !ok || !finite(price) {
			return nil, eris.Errorf("dataset: row %d: %s %q is not a number", line, model.ColumnBasePrice, cell(model.ColumnBasePrice))
		}
		reviews, ok := scalar.Parse(cell(model.ColumnTotalReviews)).Int64()
		if !ok {
			return nil, eris.Errorf("dataset: row %d: %s %q is not an integer", line, model.ColumnTotalReviews, cell(model.ColumnTotalReviews))
		}
		stars, ok := scalar.Parse(cell(model.ColumnAverageStars)).Float64()
		if !ok || !finite(stars) {
			return nil, eris.Errorf("dataset: row %d: %s %q is not a number", line, model.ColumnAverageStars, cell(model.ColumnAverageStars))
		}
		avail := scalar.Parse(cell(model.ColumnAvailability))
		if _, ok := avail.Int64(); !ok || avail.Kind() == scalar.KindString {
			return nil, eris.Errorf("dataset: row %d: %s %q is not boolean or numeric", line, model.ColumnAvailability, cell(model.ColumnAvailability))
		}

		services = append(services, model.Service{
			ID:           id,
			Title:        cell(model.ColumnTitle),
			Description:  cell(model.ColumnDescription),
			Owner:        cell(model.ColumnOwner),
			BasePrice:    price,
			TotalReviews: reviews,
			AverageStars: stars,
			Availability: avail,
		})
	}

	return services, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
