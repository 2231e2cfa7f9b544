// Package ranking holds the loaded model context and ranks services by
// predicted purchases.
package ranking

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/purchase-predictor/internal/features"
	"github.com/sells-group/purchase-predictor/internal/model"
	"github.com/sells-group/purchase-predictor/internal/predictor"
)

// DefaultTopK is the number of services returned by the ranking endpoint.
const DefaultTopK = 5

// ErrNotReady is returned when the model, dataset or feature matrix is missing.
var ErrNotReady = eris.New("ranking: model or data not properly loaded")

// Parts are the loaded artifacts an Engine is built from. Any of them may
// be missing; LoadErr records why.
type Parts struct {
	Model    predictor.Regressor
	Services []model.Service
	Matrix   *features.Matrix
	LoadErr  error
}

// Engine is the immutable model context. Services and matrix rows are
// aligned by position and never reordered. It is safe for concurrent use.
type Engine struct {
	id       string
	model    predictor.Regressor
	services []model.Service
	matrix   *features.Matrix
	loadErr  error
}

// New builds an Engine from p.
func New(p Parts) *Engine {
	return &Engine{
		id:       uuid.NewString(),
		model:    p.Model,
		services: p.Services,
		matrix:   p.Matrix,
		loadErr:  p.LoadErr,
	}
}

// ID identifies this engine instance in logs.
func (e *Engine) ID() string { return e.id }

// LoadErr returns the error recorded while loading artifacts, if any.
func (e *Engine) LoadErr() error { return e.loadErr }

// Rows returns the number of scorable services.
func (e *Engine) Rows() int {
	if e == nil {
		return 0
	}
	return e.matrix.Len()
}

// Ready returns ErrNotReady unless the model, the dataset and a non-empty
// matrix aligned with the dataset are all present.
func (e *Engine) Ready() error {
	if e == nil || e.model == nil || len(e.services) == 0 || e.matrix.Len() == 0 {
		return ErrNotReady
	}
	if e.matrix.Len() != len(e.services) {
		return eris.Wrapf(ErrNotReady, "matrix has %d rows for %d services", e.matrix.Len(), len(e.services))
	}
	return nil
}

// Top scores every service and returns the k with the highest predicted
// purchases, highest first. Equal predictions keep dataset order and
// non-finite predictions are never selected.
func (e *Engine) Top(ctx context.Context, k int) ([]model.RankedService, error) {
	if err := e.Ready(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, eris.Errorf("ranking: top %d is not positive", k)
	}

	preds, err := e.model.Predict(ctx, e.matrix)
	if err != nil {
		return nil, eris.Wrapf(err, "ranking: predict with %s", e.model.Name())
	}
	if len(preds) != len(e.services) {
		return nil, eris.Errorf("ranking: model returned %d predictions for %d services", len(preds), len(e.services))
	}

	order := make([]int, 0, len(preds))
	for i, p := range preds {
		if !math.IsNaN(p) && !math.IsInf(p, 0) {
			order = append(order, i)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(preds[b], preds[a])
	})
	if len(order) > k {
		order = order[:k]
	}

	out := make([]model.RankedService, len(order))
	for i, row := range order {
		out[i] = model.Rank(e.services[row], preds[row])
	}

	zap.L().Debug("ranking: scored services",
		zap.String("engine", e.id),
		zap.Int("rows", len(preds)),
		zap.Ints("selected", order),
	)
	return out, nil
}
