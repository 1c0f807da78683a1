package services

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// calculateSum パッケージ内部用のヘルパー関数：合計を計算
func calculateSum(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values)
}

// calculateMean パッケージ内部用のヘルパー関数：平均値を計算
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// calculateStandardDeviation パッケージ内部用のヘルパー関数：標準偏差（母集団）を計算
func calculateStandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return math.Sqrt(stat.PopVariance(values, nil))
}

// calculateSampleStdDev 標本標準偏差（n-1）。1件以下はNaN
func calculateSampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

// calculateMedian 中央値（偶数件は中央2値の平均）
func calculateMedian(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// calculateRMSE 二乗平均平方根誤差
func calculateRMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return math.Inf(1)
	}
	var sum float64
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual)))
}

// calculateMAPE 実績が正の行だけで平均絶対パーセント誤差を計算
// 該当行がなければok=false
func calculateMAPE(actual, predicted []float64) (float64, bool) {
	var sum float64
	n := 0
	for i := range actual {
		if i >= len(predicted) || actual[i] <= 0 {
			continue
		}
		sum += math.Abs((actual[i] - predicted[i]) / actual[i])
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// clamp 値を[lo, hi]に収める
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// roundTo 小数点以下digits桁に丸める
func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
