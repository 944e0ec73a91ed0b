package alpha

import (
	"math"
	"math/rand"
	"sort"
)

// regressionTree is a CART regression tree used by both the random forest
// and the gradient booster. Splits minimize within-node squared error.
type regressionTree struct {
	maxDepth    int
	minSplit    int
	minLeaf     int
	maxFeatures int // number of features sampled per split; 0 = all

	root       *treeNode
	importance []float64 // accumulated SSE reduction per feature
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

// fit builds the tree over the rows selected by idx.
func (t *regressionTree) fit(X [][]float64, y []float64, idx []int, rng *rand.Rand) {
	t.importance = make([]float64, len(X[0]))
	t.root = t.build(X, y, idx, 0, rng)
}

func (t *regressionTree) build(X [][]float64, y []float64, idx []int, depth int, rng *rand.Rand) *treeNode {
	node := &treeNode{value: meanAt(y, idx), leaf: true}
	if depth >= t.maxDepth || len(idx) < t.minSplit {
		return node
	}

	feature, threshold, gain := t.bestSplit(X, y, idx, rng)
	if feature < 0 {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < t.minLeaf || len(right) < t.minLeaf {
		return node
	}

	t.importance[feature] += gain
	node.leaf = false
	node.feature = feature
	node.threshold = threshold
	node.left = t.build(X, y, left, depth+1, rng)
	node.right = t.build(X, y, right, depth+1, rng)
	return node
}

// bestSplit scans a feature subsample for the split with the largest SSE
// reduction. Returns feature -1 when no admissible split exists.
func (t *regressionTree) bestSplit(X [][]float64, y []float64, idx []int, rng *rand.Rand) (int, float64, float64) {
	p := len(X[0])
	features := make([]int, p)
	for j := range features {
		features[j] = j
	}
	if t.maxFeatures > 0 && t.maxFeatures < p {
		rng.Shuffle(p, func(a, b int) { features[a], features[b] = features[b], features[a] })
		features = features[:t.maxFeatures]
		sort.Ints(features) // deterministic scan order for a given shuffle
	}

	var sum, sumSq float64
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	n := float64(len(idx))
	parentSSE := sumSq - sum*sum/n

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	order := make([]int, len(idx))

	for _, j := range features {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return X[order[a]][j] < X[order[b]][j] })

		var leftSum, leftSq float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			leftSum += y[i]
			leftSq += y[i] * y[i]

			nl := float64(k + 1)
			nr := n - nl
			if int(nl) < t.minLeaf || int(nr) < t.minLeaf {
				continue
			}
			// Skip ties: cannot split between equal feature values.
			if X[order[k]][j] == X[order[k+1]][j] {
				continue
			}

			rightSum := sum - leftSum
			rightSq := sumSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = (X[order[k]][j] + X[order[k+1]][j]) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func (t *regressionTree) predict(row []float64) float64 {
	node := t.root
	for !node.leaf {
		if row[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func sqrtFeatures(p int) int {
	f := int(math.Sqrt(float64(p)))
	if f < 1 {
		f = 1
	}
	return f
}
