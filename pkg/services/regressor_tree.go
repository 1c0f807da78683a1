package services

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Regressor 学習可能な回帰モデルの共通インターフェース
type Regressor interface {
	Name() string
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) float64
	// FeatureImportances 不純度減少に基づく重要度（合計1、未学習ならnil）
	FeatureImportances() []float64
}

// treeNode 回帰木のノード（葉はfeature=-1）
type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

// regressionTree 二乗誤差を基準にしたCART回帰木
type regressionTree struct {
	maxDepth       int
	minSamplesLeaf int
	nodes          []treeNode
	importances    []float64
	rng            *rand.Rand
}

func newRegressionTree(maxDepth int, rng *rand.Rand) *regressionTree {
	return &regressionTree{maxDepth: maxDepth, minSamplesLeaf: 1, rng: rng}
}

// fit samplesはXの行インデックス（重複可）
func (t *regressionTree) fit(X [][]float64, y []float64, samples []int) {
	nFeatures := len(X[0])
	t.nodes = t.nodes[:0]
	t.importances = make([]float64, nFeatures)
	idx := make([]int, len(samples))
	copy(idx, samples)
	t.grow(X, y, idx, 0)

	total := 0.0
	for _, v := range t.importances {
		total += v
	}
	if total > 0 {
		for i := range t.importances {
			t.importances[i] /= total
		}
	}
}

func (t *regressionTree) grow(X [][]float64, y []float64, idx []int, depth int) int {
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	n := float64(len(idx))
	mean := sum / n
	sse := sumSq - sum*sum/n

	node := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{feature: -1, value: mean})

	if depth >= t.maxDepth || len(idx) < 2*t.minSamplesLeaf || sse <= 1e-12*n {
		return node
	}

	feature, threshold, gain, ok := t.bestSplit(X, y, idx, sum, sumSq)
	if !ok {
		return node
	}

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	t.importances[feature] += gain

	left := t.grow(X, y, leftIdx, depth+1)
	right := t.grow(X, y, rightIdx, depth+1)
	t.nodes[node].feature = feature
	t.nodes[node].threshold = threshold
	t.nodes[node].left = left
	t.nodes[node].right = right
	return node
}

// bestSplit SSEの減少量が最大になる分割を探す
// 特徴量を調べる順序は乱数で並べ替える（同点時の選択に影響）
func (t *regressionTree) bestSplit(X [][]float64, y []float64, idx []int, sum, sumSq float64) (int, float64, float64, bool) {
	nFeatures := len(X[0])
	order := make([]int, nFeatures)
	for i := range order {
		order[i] = i
	}
	if t.rng != nil {
		t.rng.Shuffle(nFeatures, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	sorted := make([]int, len(idx))
	n := len(idx)
	sse := sumSq - sum*sum/float64(n)
	for _, f := range order {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		leftSum, leftSq := 0.0, 0.0
		for k := 0; k < n-1; k++ {
			yi := y[sorted[k]]
			leftSum += yi
			leftSq += yi * yi
			cur, next := X[sorted[k]][f], X[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nl := k + 1
			nr := n - nl
			if nl < t.minSamplesLeaf || nr < t.minSamplesLeaf {
				continue
			}
			rightSum, rightSq := sum-leftSum, sumSq-leftSq
			childSSE := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			gain := sse - childSSE
			if gain > bestGain+1e-12 {
				bestFeature, bestGain = f, gain
				bestThreshold = cur + (next-cur)/2
				if bestThreshold == next {
					bestThreshold = cur
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestGain, bestFeature >= 0
}

func (t *regressionTree) predict(x []float64) float64 {
	if len(t.nodes) == 0 {
		return 0
	}
	i := 0
	for t.nodes[i].feature >= 0 {
		if x[t.nodes[i].feature] <= t.nodes[i].threshold {
			i = t.nodes[i].left
		} else {
			i = t.nodes[i].right
		}
	}
	return t.nodes[i].value
}

// validateTrainingData 形状と数値の妥当性をチェック
func validateTrainingData(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("%w: 学習データの件数が不正です (X=%d, y=%d)", ErrModelFit, len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return fmt.Errorf("%w: 特徴量がありません", ErrModelFit)
	}
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: %d行目の特徴量数が不正です", ErrModelFit, i)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %d行目に非有限値があります", ErrModelFit, i)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return fmt.Errorf("%w: %d行目の目的変数が非有限値です", ErrModelFit, i)
		}
	}
	return nil
}

// normalize 合計1に正規化（合計0ならそのまま）
func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		copy(out, values)
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}
