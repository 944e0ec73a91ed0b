package alpha

import (
	"fmt"
	"math/rand"
)

// randomForest averages bootstrap-trained regression trees with per-split
// feature subsampling. Fully deterministic for a given seed.
type randomForest struct {
	cfg   ModelConfig
	trees []*regressionTree
	imp   []float64
}

func newRandomForest(cfg ModelConfig) *randomForest {
	return &randomForest{cfg: cfg}
}

func (f *randomForest) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("random forest fit: %d rows vs %d labels", len(X), len(y))
	}
	rng := rand.New(rand.NewSource(f.cfg.Seed))
	n := len(X)
	p := len(X[0])

	f.trees = make([]*regressionTree, 0, f.cfg.Trees)
	f.imp = make([]float64, p)

	for k := 0; k < f.cfg.Trees; k++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		tree := &regressionTree{
			maxDepth:    f.cfg.MaxDepth,
			minSplit:    f.cfg.MinSplit,
			minLeaf:     f.cfg.MinLeaf,
			maxFeatures: sqrtFeatures(p),
		}
		tree.fit(X, y, idx, rng)
		f.trees = append(f.trees, tree)
		for j, g := range tree.importance {
			f.imp[j] += g
		}
	}
	normalize(f.imp)
	return nil
}

func (f *randomForest) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		var sum float64
		for _, tree := range f.trees {
			sum += tree.predict(row)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out
}

func (f *randomForest) FeatureImportance() []float64 { return f.imp }

func normalize(v []float64) {
	var total float64
	for _, x := range v {
		total += x
	}
	if total == 0 {
		return
	}
	for i := range v {
		v[i] /= total
	}
}
