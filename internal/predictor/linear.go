package predictor

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/purchase-predictor/internal/features"
)

// Linear is intercept + Σ coefficient·feature.
type Linear struct {
	intercept    float64
	coefficients []float64
	featureNames []string
}

// NewLinear returns a linear model with one coefficient per feature.
func NewLinear(intercept float64, coefficients []float64, featureNames []string) (*Linear, error) {
	if len(coefficients) == 0 {
		return nil, eris.New("predictor: linear model has no coefficients")
	}
	if len(featureNames) > 0 && len(featureNames) != len(coefficients) {
		return nil, eris.Errorf("predictor: %d coefficients for %d feature names", len(coefficients), len(featureNames))
	}
	return &Linear{intercept: intercept, coefficients: coefficients, featureNames: featureNames}, nil
}

// Name implements Regressor.
func (l *Linear) Name() string { return KindLinear }

// Predict implements Regressor.
func (l *Linear) Predict(ctx context.Context, m *features.Matrix) ([]float64, error) {
	if err := checkInput(m, l.featureNames, len(l.coefficients)); err != nil {
		return nil, err
	}
	if m.Width() != len(l.coefficients) {
		return nil, eris.Errorf("predictor: linear model has %d coefficients, matrix has %d columns", len(l.coefficients), m.Width())
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "predictor: linear")
	}

	out := make([]float64, m.Len())
	for i, row := range m.Rows {
		y := l.intercept
		for j, c := range l.coefficients {
			y += c * row[j]
		}
		out[i] = y
	}
	return out, nil
}
