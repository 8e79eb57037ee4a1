package anomaly

import (
	"context"
	"math"
	"math/rand"
)

// Forest implements unsupervised anomaly detection using isolation trees.
// Anomalous points isolate in fewer random splits, giving shorter average
// path lengths across the forest. Fields are exported for gob persistence.
type Forest struct {
	Trees         []*Tree
	SampleSize    int
	AvgPathLength float64
}

// Tree is a single isolation tree.
type Tree struct {
	Root *Node
}

// Node is a node in an isolation tree.
type Node struct {
	SplitFeature int
	SplitValue   float64
	Left         *Node
	Right        *Node
	Size         int // samples that reached this leaf
}

// buildForest trains nTrees isolation trees over the data, each on a random
// subsample. The rng makes training deterministic for a given seed.
func buildForest(ctx context.Context, data [][]float64, nTrees, sampleSize int, rng *rand.Rand) (*Forest, error) {
	nSamples := len(data)
	nFeatures := len(data[0])

	if sampleSize > nSamples {
		sampleSize = nSamples
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1

	f := &Forest{
		Trees:         make([]*Tree, nTrees),
		SampleSize:    sampleSize,
		AvgPathLength: averagePathLength(float64(sampleSize)),
	}

	for i := 0; i < nTrees; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}
		f.Trees[i] = &Tree{Root: buildNode(sample, nFeatures, 0, maxDepth, rng)}
	}

	return f, nil
}

func buildNode(data [][]float64, nFeatures, depth, maxDepth int, rng *rand.Rand) *Node {
	n := len(data)
	if depth >= maxDepth || n <= 1 {
		return &Node{Size: n}
	}

	feature := rng.Intn(nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}
	if minVal == maxVal {
		return &Node{Size: n}
	}

	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &Node{
		SplitFeature: feature,
		SplitValue:   splitValue,
		Left:         buildNode(leftData, nFeatures, depth+1, maxDepth, rng),
		Right:        buildNode(rightData, nFeatures, depth+1, maxDepth, rng),
	}
}

// DecisionScore returns the decision score for a sample: positive for
// inliers, negative for outliers, more negative meaning more anomalous.
// This is 0.5 minus the standard isolation score 2^(-E[h(x)]/c(n)).
func (f *Forest) DecisionScore(sample []float64) float64 {
	var totalPath float64
	for _, tree := range f.Trees {
		totalPath += pathLength(sample, tree.Root, 0)
	}
	avgPath := totalPath / float64(len(f.Trees))

	anomalyScore := math.Pow(2, -avgPath/f.AvgPathLength)
	return 0.5 - anomalyScore
}

// pathLength walks a sample down a tree, adding the expected remaining
// path for samples sharing a leaf.
func pathLength(sample []float64, n *Node, depth int) float64 {
	if n.Left == nil && n.Right == nil {
		return float64(depth) + averagePathLength(float64(n.Size))
	}
	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(sample, n.Left, depth+1)
	}
	return pathLength(sample, n.Right, depth+1)
}

// averagePathLength returns the average path length of unsuccessful search
// in a BST of n nodes: c(n) = 2*H(n-1) - 2*(n-1)/n.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}
