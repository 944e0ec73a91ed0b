package alpha

import (
	"fmt"
	"math/rand"
)

// gradientBoosting fits shallow regression trees to residuals with a slow
// learning rate and stochastic row subsampling.
type gradientBoosting struct {
	cfg   ModelConfig
	base  float64
	trees []*regressionTree
	imp   []float64
}

func newGradientBoosting(cfg ModelConfig) *gradientBoosting {
	return &gradientBoosting{cfg: cfg}
}

func (g *gradientBoosting) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 || n != len(y) {
		return fmt.Errorf("gradient boosting fit: %d rows vs %d labels", n, len(y))
	}
	rng := rand.New(rand.NewSource(g.cfg.Seed))
	p := len(X[0])

	var sum float64
	for _, v := range y {
		sum += v
	}
	g.base = sum / float64(n)

	resid := make([]float64, n)
	for i, v := range y {
		resid[i] = v - g.base
	}

	g.trees = make([]*regressionTree, 0, g.cfg.Trees)
	g.imp = make([]float64, p)
	subSize := int(g.cfg.Subsample * float64(n))
	if subSize < 1 {
		subSize = n
	}

	for k := 0; k < g.cfg.Trees; k++ {
		idx := rng.Perm(n)[:subSize]
		tree := &regressionTree{
			maxDepth: g.cfg.MaxDepth,
			minSplit: g.cfg.MinSplit,
			minLeaf:  g.cfg.MinLeaf,
		}
		tree.fit(X, resid, idx, rng)
		g.trees = append(g.trees, tree)
		for j, gain := range tree.importance {
			g.imp[j] += gain
		}
		for i := range resid {
			resid[i] -= g.cfg.LearningRate * tree.predict(X[i])
		}
	}
	normalize(g.imp)
	return nil
}

func (g *gradientBoosting) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		v := g.base
		for _, tree := range g.trees {
			v += g.cfg.LearningRate * tree.predict(row)
		}
		out[i] = v
	}
	return out
}

func (g *gradientBoosting) FeatureImportance() []float64 { return g.imp }
