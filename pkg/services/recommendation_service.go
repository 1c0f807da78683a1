package services

import (
	"fmt"
	"math"
	"sort"

	"demand-insight-api/pkg/models"
)

const (
	// MaxRecommendations 推奨事項の最大件数
	MaxRecommendations = 15
	baselineMonths     = 6
	trendWindow        = 3
	volatileThreshold  = 0.3
	trendThreshold     = 10.0
)

// RecommendationService 予測結果から在庫の推奨事項を作る
type RecommendationService struct{}

// NewRecommendationService 新しい推奨サービスを作成
func NewRecommendationService() *RecommendationService {
	return &RecommendationService{}
}

// ClassifyChange 変化率と変動係数から段階を決める
func ClassifyChange(change, volatility float64) models.RecommendationTier {
	switch {
	case change > 30:
		return models.TierSevereIncrease
	case change > 15:
		return models.TierModerateIncrease
	case change > 5:
		return models.TierMildIncrease
	case change < -30:
		return models.TierSevereDecrease
	case change < -15:
		return models.TierModerateDecrease
	case change < -5:
		return models.TierMildDecrease
	case volatility > volatileThreshold:
		return models.TierVolatile
	default:
		return models.TierStable
	}
}

// ClassifyPriority |変化率|が20超でhigh、10超でmedium
func ClassifyPriority(change float64) models.Priority {
	switch a := math.Abs(change); {
	case a > 20:
		return models.PriorityHigh
	case a > 10:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// Recommend 1製品分の推奨事項。historyはその製品の行ごとの数量
func (rs *RecommendationService) Recommend(result models.ForecastResult, history []float64) models.Recommendation {
	preds := result.MonthlyPredictions
	pastMonthly := calculateMean(history)
	baseline := pastMonthly * baselineMonths

	change := 0.0
	if baseline > 0 {
		change = (result.TotalPredicted - baseline) / baseline * 100
	}

	futureAvg := calculateMean(preds)
	volatility := 0.0
	if futureAvg > 0 {
		volatility = calculateStandardDeviation(preds) / futureAvg
	}
	trend := predictionTrend(preds)

	tier := ClassifyChange(change, volatility)
	minPred, maxPred := minMax(preds)
	name := result.Product

	var text string
	switch tier {
	case models.TierSevereIncrease:
		text = fmt.Sprintf("🔥 %s: 需要が大幅に増加する見込みです（+%.1f%%）。最大月間予測は%d個です。仕入先との連携を強化し、安全在庫を確保してください。",
			name, change, int(maxPred))
	case models.TierModerateIncrease:
		text = fmt.Sprintf("📈 %s: 需要は中程度の増加傾向です（+%.1f%%）。過去平均%d個/月に対し、今後は%d個/月の見込みです。在庫水準を20〜30%%引き上げてください。",
			name, change, int(pastMonthly), int(futureAvg))
	case models.TierMildIncrease:
		text = fmt.Sprintf("✅ %s: 緩やかな増加傾向です（+%.1f%%）。現在の在庫戦略を維持しつつ、需要のピークに備えてください。",
			name, change)
	case models.TierSevereDecrease:
		text = fmt.Sprintf("⚠️ %s: 需要が大幅に減少する見込みです（-%.1f%%）。月平均%d個から%d個に減少します。過剰在庫を避け、販促を検討してください。",
			name, math.Abs(change), int(pastMonthly), int(futureAvg))
	case models.TierModerateDecrease:
		text = fmt.Sprintf("📉 %s: 需要は減少傾向です（-%.1f%%）。発注量を20〜30%%減らし、保管コストを最適化してください。",
			name, math.Abs(change))
	case models.TierMildDecrease:
		text = fmt.Sprintf("🟡 %s: 緩やかな減少傾向です（-%.1f%%）。在庫を少し減らし、推移を注意深く見守ってください。",
			name, math.Abs(change))
	case models.TierVolatile:
		text = fmt.Sprintf("🟠 %s: 需要は横ばいですが変動が大きい見込みです。最小%d個〜最大%d個の範囲で推移します。柔軟な在庫戦略をとってください。",
			name, int(minPred), int(maxPred))
	default:
		text = fmt.Sprintf("✅ %s: 理想的な安定状態です。月平均%d個の見込みです。現在の在庫水準を維持し、自動発注の活用を検討してください。",
			name, int(futureAvg))
	}

	if math.Abs(trend) > trendThreshold {
		if trend > 0 {
			text += fmt.Sprintf(" 🔺 トレンド: 後半%dヶ月は前半%dヶ月より%.0f%%多い需要が見込まれます。", trendWindow, trendWindow, trend)
		} else {
			text += fmt.Sprintf(" 🔻 トレンド: 後半%dヶ月は前半%dヶ月より%.0f%%減少する見込みです。", trendWindow, trendWindow, math.Abs(trend))
		}
	}

	return models.Recommendation{
		Product:          name,
		Recommendation:   text,
		ChangePercentage: roundTo(change, 1),
		Trend:            roundTo(trend, 1),
		Volatility:       roundTo(volatility, 3),
		Tier:             tier,
		Priority:         ClassifyPriority(change),
	}
}

// Synthesize 全製品の推奨事項を作って順位付けする
func (rs *RecommendationService) Synthesize(results []models.ForecastResult, histories map[string][]float64) []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(results))
	for _, r := range results {
		recs = append(recs, rs.Recommend(r, histories[r.Product]))
	}
	return RankRecommendations(recs)
}

// RankRecommendations 優先度（high→low）、|変化率|の降順、製品IDの昇順で並べ、上位15件を返す
// 入力の順序に依存しない
func RankRecommendations(recs []models.Recommendation) []models.Recommendation {
	out := make([]models.Recommendation, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if ca, cb := math.Abs(a.ChangePercentage), math.Abs(b.ChangePercentage); ca != cb {
			return ca > cb
		}
		return a.Product < b.Product
	})
	if len(out) > MaxRecommendations {
		out = out[:MaxRecommendations]
	}
	return out
}

// predictionTrend 後半3ヶ月平均の前半3ヶ月平均に対する変化率（%）
func predictionTrend(preds []float64) float64 {
	if len(preds) == 0 {
		return 0
	}
	w := trendWindow
	if len(preds) < w {
		w = len(preds)
	}
	first := calculateMean(preds[:w])
	last := calculateMean(preds[len(preds)-w:])
	if first <= 0 {
		return 0
	}
	return (last - first) / first * 100
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
