package predictor

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/purchase-predictor/internal/features"
)

// Tree is one regression tree in array form. Node 0 is the root; a node is
// a leaf when ChildrenLeft is -1.
type Tree struct {
	ChildrenLeft  []int     `json:"children_left" yaml:"children_left"`
	ChildrenRight []int     `json:"children_right" yaml:"children_right"`
	Feature       []int     `json:"feature" yaml:"feature"`
	Threshold     []float64 `json:"threshold" yaml:"threshold"`
	Value         []float64 `json:"value" yaml:"value"`
}

const leaf = -1

func (t *Tree) validate() (maxFeature int, err error) {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return 0, eris.New("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return 0, eris.Errorf("tree node arrays differ in length (%d nodes)", n)
	}

	maxFeature = -1
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf {
			if r != leaf {
				return 0, eris.Errorf("node %d has only a right child", i)
			}
			continue
		}
		// Children always follow their parent, so walks terminate.
		if l <= i || r <= i || l >= n || r >= n {
			return 0, eris.Errorf("node %d has invalid children (%d, %d)", i, l, r)
		}
		if t.Feature[i] < 0 {
			return 0, eris.Errorf("node %d splits on feature %d", i, t.Feature[i])
		}
		maxFeature = max(maxFeature, t.Feature[i])
	}
	return maxFeature, nil
}

func (t *Tree) predict(x []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// Forest averages the predictions of its trees.
type Forest struct {
	trees        []Tree
	featureNames []string
	width        int
}

// NewForest validates trees and returns the ensemble.
func NewForest(trees []Tree, featureNames []string) (*Forest, error) {
	if len(trees) == 0 {
		return nil, eris.New("predictor: random forest has no trees")
	}
	width := 0
	for i := range trees {
		maxFeature, err := trees[i].validate()
		if err != nil {
			return nil, eris.Wrapf(err, "predictor: tree %d", i)
		}
		width = max(width, maxFeature+1)
	}
	if len(featureNames) > 0 && width > len(featureNames) {
		return nil, eris.Errorf("predictor: trees split on feature %d but only %d names are listed", width-1, len(featureNames))
	}
	return &Forest{trees: trees, featureNames: featureNames, width: width}, nil
}

// Name implements Regressor.
func (f *Forest) Name() string { return KindRandomForest }

// Predict implements Regressor.
func (f *Forest) Predict(ctx context.Context, m *features.Matrix) ([]float64, error) {
	if err := checkInput(m, f.featureNames, f.width); err != nil {
		return nil, err
	}

	out := make([]float64, m.Len())
	for i, row := range m.Rows {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "predictor: random forest")
		}
		var sum float64
		for j := range f.trees {
			sum += f.trees[j].predict(row)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out, nil
}
