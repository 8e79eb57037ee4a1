package predict

import (
	"context"
	"math"
	"math/rand"
	"sort"
)

// TreeNode is a node of a CART decision tree. Leaves carry the class vote
// of the training samples that reached them. Fields are exported for gob
// persistence.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Class     int // leaf prediction; -1 for internal nodes
}

// Forest is a bagged ensemble of CART trees trained on bootstrap samples.
type Forest struct {
	Trees       []*TreeNode
	NumClasses  int
	NumFeatures int
	Importances []float64 // mean impurity decrease per encoded feature
}

type treeBuilder struct {
	data        [][]float64
	labels      []int
	numClasses  int
	maxDepth    int
	minLeaf     int
	featSubset  int
	rng         *rand.Rand
	importances []float64
	totalRows   float64
}

// buildForest trains nTrees CART trees, each on a bootstrap sample, with a
// sqrt(d) random feature subset considered at every split.
func buildForest(ctx context.Context, data [][]float64, labels []int, numClasses, nTrees int, rng *rand.Rand) (*Forest, error) {
	nFeatures := len(data[0])

	f := &Forest{
		Trees:       make([]*TreeNode, 0, nTrees),
		NumClasses:  numClasses,
		NumFeatures: nFeatures,
		Importances: make([]float64, nFeatures),
	}

	b := &treeBuilder{
		numClasses:  numClasses,
		maxDepth:    12,
		minLeaf:     1,
		featSubset:  int(math.Ceil(math.Sqrt(float64(nFeatures)))),
		rng:         rng,
		importances: f.Importances,
		totalRows:   float64(len(data)),
	}

	for i := 0; i < nTrees; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Bootstrap sample with replacement.
		sampleData := make([][]float64, len(data))
		sampleLabels := make([]int, len(data))
		for j := range data {
			k := rng.Intn(len(data))
			sampleData[j] = data[k]
			sampleLabels[j] = labels[k]
		}

		b.data = sampleData
		b.labels = sampleLabels
		indices := make([]int, len(data))
		for j := range indices {
			indices[j] = j
		}
		f.Trees = append(f.Trees, b.build(indices, 0))
	}

	// Normalize accumulated impurity decreases to sum to one.
	var total float64
	for _, imp := range f.Importances {
		total += imp
	}
	if total > 0 {
		for i := range f.Importances {
			f.Importances[i] /= total
		}
	}

	return f, nil
}

func (b *treeBuilder) build(indices []int, depth int) *TreeNode {
	counts := b.classCounts(indices)
	majority, pure := majorityClass(counts)

	if pure || depth >= b.maxDepth || len(indices) <= b.minLeaf {
		return &TreeNode{Class: majority, Feature: -1}
	}

	feature, threshold, gain, left, right := b.bestSplit(indices, counts)
	if feature < 0 || len(left) == 0 || len(right) == 0 {
		return &TreeNode{Class: majority, Feature: -1}
	}

	b.importances[feature] += gain * float64(len(indices)) / b.totalRows

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Class:     -1,
		Left:      b.build(left, depth+1),
		Right:     b.build(right, depth+1),
	}
}

// bestSplit searches a random feature subset for the threshold maximizing
// gini impurity decrease.
func (b *treeBuilder) bestSplit(indices []int, parentCounts []int) (int, float64, float64, []int, []int) {
	parentImpurity := gini(parentCounts, len(indices))
	n := float64(len(indices))

	bestFeature := -1
	var bestThreshold, bestGain float64
	var bestLeft, bestRight []int

	for _, feature := range b.rng.Perm(len(b.data[0]))[:b.featSubset] {
		// Candidate thresholds at midpoints between distinct sorted values.
		values := make([]float64, 0, len(indices))
		for _, idx := range indices {
			values = append(values, b.data[idx][feature])
		}
		sort.Float64s(values)

		for v := 1; v < len(values); v++ {
			if values[v] == values[v-1] {
				continue
			}
			threshold := (values[v] + values[v-1]) / 2

			var left, right []int
			for _, idx := range indices {
				if b.data[idx][feature] < threshold {
					left = append(left, idx)
				} else {
					right = append(right, idx)
				}
			}

			leftImp := gini(b.classCounts(left), len(left))
			rightImp := gini(b.classCounts(right), len(right))
			weighted := (float64(len(left))*leftImp + float64(len(right))*rightImp) / n

			if gain := parentImpurity - weighted; gain > bestGain {
				bestFeature = feature
				bestThreshold = threshold
				bestGain = gain
				bestLeft = left
				bestRight = right
			}
		}
	}

	return bestFeature, bestThreshold, bestGain, bestLeft, bestRight
}

func (b *treeBuilder) classCounts(indices []int) []int {
	counts := make([]int, b.numClasses)
	for _, idx := range indices {
		counts[b.labels[idx]]++
	}
	return counts
}

func majorityClass(counts []int) (int, bool) {
	best, bestCount, nonZero := 0, -1, 0
	for class, count := range counts {
		if count > 0 {
			nonZero++
		}
		if count > bestCount {
			best = class
			bestCount = count
		}
	}
	return best, nonZero <= 1
}

func gini(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		p := float64(count) / float64(total)
		impurity -= p * p
	}
	return impurity
}

// predictTree walks a sample down one tree to its leaf class.
func predictTree(node *TreeNode, sample []float64) int {
	for node.Feature >= 0 {
		if sample[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Class
}

// Predict returns the majority-vote class for the sample.
func (f *Forest) Predict(sample []float64) int {
	votes := f.Proba(sample)
	best, bestP := 0, -1.0
	for class, p := range votes {
		if p > bestP {
			best = class
			bestP = p
		}
	}
	return best
}

// Proba returns per-class vote fractions for the sample.
func (f *Forest) Proba(sample []float64) []float64 {
	votes := make([]float64, f.NumClasses)
	for _, tree := range f.Trees {
		votes[predictTree(tree, sample)]++
	}
	for i := range votes {
		votes[i] /= float64(len(f.Trees))
	}
	return votes
}
