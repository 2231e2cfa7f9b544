// Package features turns the service dataset into the numeric matrix the
// regression model was trained on.
package features

// Matrix is a dense row-major feature table. Row i corresponds to row i of
// the dataset it was built from.
type Matrix struct {
	Columns []string
	Rows    [][]float64

	// Filled counts listed columns the encoding did not produce (zero-filled).
	Filled int
	// Unused counts encoded columns the feature list did not select.
	Unused int
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Rows)
}

// Width returns the number of columns.
func (m *Matrix) Width() int {
	if m == nil {
		return 0
	}
	return len(m.Columns)
}
