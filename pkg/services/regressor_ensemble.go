package services

import (
	"math/rand/v2"
)

// 既定のハイパーパラメータ
const (
	ensembleSeed      = 42
	forestTrees       = 100
	forestMaxDepth    = 10
	boostingStages    = 100
	boostingMaxDepth  = 5
	boostingLearnRate = 0.1
)

// newSeededRand 固定シードのPCG乱数
func newSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// RandomForestRegressor ブートストラップ標本で学習した回帰木の平均
type RandomForestRegressor struct {
	NTrees   int
	MaxDepth int
	Seed     uint64

	trees       []*regressionTree
	importances []float64
}

// NewRandomForestRegressor 既定設定（100本・深さ10・シード42）
func NewRandomForestRegressor() *RandomForestRegressor {
	return &RandomForestRegressor{NTrees: forestTrees, MaxDepth: forestMaxDepth, Seed: ensembleSeed}
}

// Name モデル名
func (rf *RandomForestRegressor) Name() string { return "random_forest" }

// Fit 学習
func (rf *RandomForestRegressor) Fit(X [][]float64, y []float64) error {
	if err := validateTrainingData(X, y); err != nil {
		return err
	}
	rng := newSeededRand(rf.Seed)
	n := len(X)
	rf.trees = make([]*regressionTree, 0, rf.NTrees)
	sum := make([]float64, len(X[0]))
	for b := 0; b < rf.NTrees; b++ {
		samples := make([]int, n)
		for i := range samples {
			samples[i] = rng.IntN(n)
		}
		tree := newRegressionTree(rf.MaxDepth, rng)
		tree.fit(X, y, samples)
		rf.trees = append(rf.trees, tree)
		for i, v := range tree.importances {
			sum[i] += v
		}
	}
	rf.importances = normalize(sum)
	return nil
}

// Predict 各木の予測の平均
func (rf *RandomForestRegressor) Predict(x []float64) float64 {
	if len(rf.trees) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range rf.trees {
		total += t.predict(x)
	}
	return total / float64(len(rf.trees))
}

// FeatureImportances 特徴量重要度
func (rf *RandomForestRegressor) FeatureImportances() []float64 {
	return rf.importances
}

// GradientBoostingRegressor 残差に回帰木を順に当てはめる勾配ブースティング（二乗誤差）
type GradientBoostingRegressor struct {
	NStages      int
	MaxDepth     int
	LearningRate float64
	Seed         uint64

	init        float64
	trees       []*regressionTree
	importances []float64
}

// NewGradientBoostingRegressor 既定設定（100段・深さ5・学習率0.1・シード42）
func NewGradientBoostingRegressor() *GradientBoostingRegressor {
	return &GradientBoostingRegressor{
		NStages:      boostingStages,
		MaxDepth:     boostingMaxDepth,
		LearningRate: boostingLearnRate,
		Seed:         ensembleSeed,
	}
}

// Name モデル名
func (gb *GradientBoostingRegressor) Name() string { return "gradient_boosting" }

// Fit 学習（初期値は目的変数の平均）
func (gb *GradientBoostingRegressor) Fit(X [][]float64, y []float64) error {
	if err := validateTrainingData(X, y); err != nil {
		return err
	}
	rng := newSeededRand(gb.Seed)
	n := len(X)
	gb.init = calculateMean(y)
	gb.trees = make([]*regressionTree, 0, gb.NStages)

	current := make([]float64, n)
	for i := range current {
		current[i] = gb.init
	}
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	residual := make([]float64, n)
	sum := make([]float64, len(X[0]))
	for m := 0; m < gb.NStages; m++ {
		for i := range residual {
			residual[i] = y[i] - current[i]
		}
		tree := newRegressionTree(gb.MaxDepth, rng)
		tree.fit(X, residual, all)
		gb.trees = append(gb.trees, tree)
		for i := range current {
			current[i] += gb.LearningRate * tree.predict(X[i])
		}
		for i, v := range tree.importances {
			sum[i] += v
		}
	}
	gb.importances = normalize(sum)
	return nil
}

// Predict 初期値＋学習率×各段の予測
func (gb *GradientBoostingRegressor) Predict(x []float64) float64 {
	out := gb.init
	for _, t := range gb.trees {
		out += gb.LearningRate * t.predict(x)
	}
	return out
}

// FeatureImportances 特徴量重要度
func (gb *GradientBoostingRegressor) FeatureImportances() []float64 {
	return gb.importances
}

// DefaultCandidates 製品ごとに新しい候補モデルを作る
func DefaultCandidates() []Regressor {
	return []Regressor{NewRandomForestRegressor(), NewGradientBoostingRegressor()}
}
