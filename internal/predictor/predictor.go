// Package predictor scores feature matrices with a trained regression
// model, either evaluated in-process from an exported artifact or
// delegated to a remote scoring endpoint.
package predictor

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/purchase-predictor/internal/features"
)

// Regressor produces one prediction per matrix row, in row order.
type Regressor interface {
	Name() string
	Predict(ctx context.Context, m *features.Matrix) ([]float64, error)
}

// Artifact kinds.
const (
	KindRandomForest = "random_forest"
	KindLinear       = "linear"
)

// Artifact is an exported model. Tree arrays follow the scikit-learn
// tree_ layout with one output per node.
type Artifact struct {
	Kind         string    `json:"kind" yaml:"kind"`
	FeatureNames []string  `json:"feature_names,omitempty" yaml:"feature_names,omitempty"`
	Trees        []Tree    `json:"trees,omitempty" yaml:"trees,omitempty"`
	Intercept    float64   `json:"intercept,omitempty" yaml:"intercept,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`
}

// Load reads the artifact at path (.json, .yaml or .yml) and returns the
// model it describes.
func Load(path string) (Regressor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "predictor: read %s", path)
	}

	var a Artifact
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &a)
	default:
		err = json.Unmarshal(data, &a)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "predictor: decode %s", path)
	}

	r, err := FromArtifact(a)
	if err != nil {
		return nil, eris.Wrapf(err, "predictor: load %s", path)
	}
	return r, nil
}

// FromArtifact validates a and builds its model.
func FromArtifact(a Artifact) (Regressor, error) {
	switch a.Kind {
	case KindRandomForest:
		return NewForest(a.Trees, a.FeatureNames)
	case KindLinear:
		return NewLinear(a.Intercept, a.Coefficients, a.FeatureNames)
	case "":
		return nil, eris.New("predictor: artifact kind is empty")
	default:
		return nil, eris.Errorf("predictor: unknown artifact kind %q", a.Kind)
	}
}

// checkInput rejects matrices the model cannot score: column names that
// differ from the trained names, a width the model cannot address, and
// non-finite values.
func checkInput(m *features.Matrix, trained []string, width int) error {
	if m == nil {
		return eris.New("predictor: matrix is nil")
	}
	if len(trained) > 0 && !slices.Equal(trained, m.Columns) {
		return eris.Errorf("predictor: feature names differ from training (%d trained, %d given)", len(trained), m.Width())
	}
	if m.Width() < width {
		return eris.Errorf("predictor: model needs %d features, matrix has %d", width, m.Width())
	}
	return checkFinite(m)
}

func checkFinite(m *features.Matrix) error {
	for i, row := range m.Rows {
		if len(row) != m.Width() {
			return eris.Errorf("predictor: row %d has %d values, want %d", i, len(row), m.Width())
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return eris.Errorf("predictor: input contains NaN or infinity (row %d, column %q)", i, m.Columns[j])
			}
		}
	}
	return nil
}
