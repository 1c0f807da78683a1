package services

import (
	"fmt"
	"math"
	"time"

	"demand-insight-api/pkg/models"

	"go.uber.org/zap"
)

const (
	// DefaultHorizon 既定の予測月数
	DefaultHorizon = 6
	// forecastStepDays 1ステップあたりの日数
	forecastStepDays = 30
)

// Forecaster 学習済みモデルで将来の数量を再帰的に予測する
type Forecaster struct {
	calendar *CalendarService
	logger   *zap.Logger
	now      func() time.Time
}

// ForecasterOption Forecasterの生成オプション
type ForecasterOption func(*Forecaster)

// WithClock 現在時刻の取得方法を差し替える（平均法の開始月に使う）
func WithClock(now func() time.Time) ForecasterOption {
	return func(f *Forecaster) {
		if now != nil {
			f.now = now
		}
	}
}

// WithForecastLogger ロガーを設定
func WithForecastLogger(logger *zap.Logger) ForecasterOption {
	return func(f *Forecaster) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewForecaster 新しいForecasterを作成
func NewForecaster(calendar *CalendarService, opts ...ForecasterOption) *Forecaster {
	f := &Forecaster{calendar: calendar, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forecast horizon件の非負の予測値を時系列順に返す
// モデルも履歴もない場合はゼロ列とErrForecastUnavailableを返す
func (f *Forecaster) Forecast(entity string, history []models.FeatureRow, model *EntityModel, horizon int) ([]float64, error) {
	if horizon <= 0 {
		return []float64{}, nil
	}
	if !model.HasModel() {
		return f.forecastAverage(entity, history, horizon)
	}
	if len(history) == 0 {
		return make([]float64, horizon), fmt.Errorf("%w: %s", ErrForecastUnavailable, entity)
	}

	base := f.baseDate(history)
	preds := make([]float64, 0, horizon)
	for step := 0; step < horizon; step++ {
		features := f.FutureFeatures(history, base, preds, step)
		preds = append(preds, predictNonNegative(model, features))
	}
	return preds, nil
}

// forecastAverage 履歴平均×季節係数（現在の月から）
func (f *Forecaster) forecastAverage(entity string, history []models.FeatureRow, horizon int) ([]float64, error) {
	preds := make([]float64, horizon)
	if len(history) == 0 {
		f.logger.Warn("⚠️ モデルも履歴もないためゼロ予測を返します", zap.String("entity", entity))
		return preds, fmt.Errorf("%w: %s", ErrForecastUnavailable, entity)
	}
	q := make([]float64, len(history))
	for i, r := range history {
		q[i] = r.Quantity
	}
	avg := calculateMean(q)
	start := int(f.now().Month())
	for i := range preds {
		month := (start+i-1)%12 + 1
		preds[i] = nonNegative(avg * f.calendar.SeasonalFactor(month))
	}
	return preds, nil
}

// baseDate 予測の起点日（最後の有効な日付、なければ現在時刻）
func (f *Forecaster) baseDate(history []models.FeatureRow) time.Time {
	if i := anchorIndex(history); i >= 0 && history[i].DateValid {
		return history[i].Date
	}
	return f.now()
}

// anchorIndex 起点とする行。日付なしの行は末尾に並ぶため、最後の有効な日付の行を選ぶ
// （有効な日付がなければ最後の行）
func anchorIndex(history []models.FeatureRow) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].DateValid {
			return i
		}
	}
	return len(history) - 1
}

// FutureFeatures stepステップ目の特徴量ベクトルを組み立てる
// predsはそれまでに出した予測（len(preds) == step を想定）
func (f *Forecaster) FutureFeatures(history []models.FeatureRow, base time.Time, preds []float64, step int) models.FeatureVector {
	last := history[anchorIndex(history)]
	date := base.AddDate(0, 0, forecastStepDays*(step+1))

	var v models.FeatureVector
	ctx := f.calendar.Context(date)
	v[models.FeatYear] = float64(ctx.Year)
	v[models.FeatMonth] = float64(ctx.Month)
	v[models.FeatDay] = float64(ctx.Day)
	v[models.FeatDayOfWeek] = float64(ctx.DayOfWeek)
	v[models.FeatWeekOfYear] = float64(ctx.WeekOfYear)
	v[models.FeatQuarter] = float64(ctx.Quarter)
	v[models.FeatIsWeekend] = boolToFloat(ctx.IsWeekend)
	v[models.FeatSeasonalFactor] = ctx.SeasonalFactor
	v[models.FeatIsSpecialDay] = boolToFloat(ctx.IsSpecialDay)
	v[models.FeatTimeIndex] = last.Features[models.FeatTimeIndex] + float64(forecastStepDays*(step+1))

	if step == 0 || len(preds) == 0 {
		v[models.FeatLag1] = last.Quantity
		v[models.FeatLag7] = last.Features[models.FeatLag7]
		v[models.FeatLag30] = last.Features[models.FeatLag30]
	} else {
		v[models.FeatLag1] = predictionLag(preds, 1)
		v[models.FeatLag7] = predictionLag(preds, 7)
		v[models.FeatLag30] = predictionLag(preds, 30)
	}

	// 移動統計は最後の実績値で固定
	for _, col := range []int{
		models.FeatRollingMean7, models.FeatRollingStd7,
		models.FeatRollingMean14, models.FeatRollingStd14,
		models.FeatRollingMean30, models.FeatRollingStd30,
	} {
		v[col] = last.Features[col]
	}
	return v
}

// predictionLag k個前の予測値。足りなければ最初の予測値
func predictionLag(preds []float64, k int) float64 {
	if len(preds) >= k {
		return preds[len(preds)-k]
	}
	return preds[0]
}

func predictNonNegative(model *EntityModel, features models.FeatureVector) float64 {
	scaled := model.Scaler.Transform(features[:])
	return nonNegative(model.Regressor.Predict(scaled))
}

// nonNegative 負値・NaNは0
func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
