package services

import "math"

// StandardScaler 列ごとに平均0・分散1へ標準化する（母集団標準偏差、0なら1）
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit 学習データから平均とスケールを求める
func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		s.Mean, s.Scale = nil, nil
		return
	}
	width := len(X[0])
	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)
	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		s.Mean[j] = calculateMean(col)
		std := calculateStandardDeviation(col)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Scale[j] = std
	}
}

// Transform 1行を標準化した新しいスライスを返す
func (s *StandardScaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		if j >= len(s.Mean) {
			out[j] = v
			continue
		}
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// TransformAll 全行を標準化
func (s *StandardScaler) TransformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.Transform(row)
	}
	return out
}
