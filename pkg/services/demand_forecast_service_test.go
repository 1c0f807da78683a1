package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"demand-insight-api/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// panicRegressor 目印の数量を含む製品の学習でpanicする
type panicRegressor struct{ marker float64 }

func (panicRegressor) Name() string { return "panic" }
func (p panicRegressor) Fit(_ [][]float64, y []float64) error {
	for _, v := range y {
		if v == p.marker {
			panic("boom")
		}
	}
	return nil
}
func (panicRegressor) Predict([]float64) float64 { return 5 }
func (panicRegressor) FeatureImportances() []float64 { return nil }

func newTestDemandService(t *testing.T, opts ...DemandForecastOption) *DemandForecastService {
	t.Helper()
	opts = append([]DemandForecastOption{WithServiceClock(fixedClock(2025, time.March))}, opts...)
	return NewDemandForecastService(newTestCalendar(t), opts...)
}

func TestGeneratePredictionsEndToEnd(t *testing.T) {
	ds := monthlyDataset([]string{"Elma", "Süt", "Ekmek"}, 24, func(p, m int) float64 {
		return float64(50*(p+1)) + seasonalQty(m)
	})
	reg := prometheus.NewRegistry()
	svc := newTestDemandService(t, WithWorkers(2), WithMetrics(NewPipelineMetrics(reg)))

	res, err := svc.GeneratePredictions(context.Background(), ds, ForecastOptions{TopN: 3, Horizon: 6})
	require.NoError(t, err)

	require.Len(t, res.Predictions, 3)
	// 数量合計の順
	assert.Equal(t, "Ekmek", res.Predictions[0].Product)
	assert.Equal(t, "Süt", res.Predictions[1].Product)
	assert.Equal(t, "Elma", res.Predictions[2].Product)
	for _, p := range res.Predictions {
		require.Len(t, p.MonthlyPredictions, 6)
		assert.InDelta(t, calculateSum(p.MonthlyPredictions), p.TotalPredicted, 1e-9)
		assert.Equal(t, models.MethodModel, p.Metrics.Method)
	}

	assert.Equal(t, 3, res.TotalProducts)
	assert.Empty(t, res.FailedProducts)
	assert.LessOrEqual(t, len(res.Recommendations), MaxRecommendations)
	assert.Len(t, res.Recommendations, 3)
	assert.GreaterOrEqual(t, res.Accuracy, 70.0)
	assert.LessOrEqual(t, res.Accuracy, 98.0)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, "product", res.Schema[models.RoleProduct])
	assert.Equal(t, "date", res.Schema[models.RoleDate])
	assert.Equal(t, "qty", res.Schema[models.RoleQuantity])

	assert.Equal(t, 6, res.PredictionMonths)
	assert.Equal(t, "2024-12-01", res.LastDataDate)
	require.Len(t, res.FutureMonths, 6)
	assert.Equal(t, models.FutureMonth{MonthIndex: 1, MonthName: "2025年1月", Date: "2025-01"}, res.FutureMonths[0])
	assert.Equal(t, "2025-06", res.FutureMonths[5].Date)

	assert.Equal(t, 72, res.DataSummary.TotalRows)
	assert.Equal(t, 3, res.DataSummary.UniqueProducts)
	assert.Equal(t, "2023-01-01 - 2024-12-01", res.DataSummary.DateRange)
	assert.Equal(t, "2025-03-10T00:00:00Z", res.GeneratedAt)

	assert.Equal(t, 1.0, counterValue(t, reg, "demand_forecast_runs_total", "success"))
	assert.Equal(t, 3.0, counterValue(t, reg, "demand_forecast_entities_trained_total", "model"))
}

// counterValue ラベル値が一致するカウンタの値
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestGeneratePredictionsTopNAndAveragePath(t *testing.T) {
	// 5ヶ月分しかないので全製品が平均法
	ds := monthlyDataset([]string{"A", "B", "C", "D"}, 5, func(p, _ int) float64 { return float64(10 * (p + 1)) })
	svc := newTestDemandService(t)

	res, err := svc.GeneratePredictions(context.Background(), ds, ForecastOptions{Mapping: testMapping, TopN: 2, Horizon: 3})
	require.NoError(t, err)

	require.Len(t, res.Predictions, 2)
	assert.Equal(t, "D", res.Predictions[0].Product)
	assert.Equal(t, "C", res.Predictions[1].Product)
	assert.Equal(t, 75.0, res.Accuracy)
	for _, p := range res.Predictions {
		assert.Equal(t, models.MethodAverage, p.Metrics.Method)
		assert.Len(t, p.MonthlyPredictions, 3)
	}
	assert.Equal(t, 4, res.DataSummary.UniqueProducts)
	assert.Equal(t, 500.0, res.DataSummary.TotalQuantity)
}

func TestGeneratePredictionsSchemaUnresolved(t *testing.T) {
	ds := &models.Dataset{
		Columns: []string{"x", "y"},
		Records: []models.Record{{"x": "a", "y": "b"}, {"x": "c", "y": "d"}},
	}
	svc := newTestDemandService(t)

	_, err := svc.GeneratePredictions(context.Background(), ds, ForecastOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaUnresolved))

	_, err = svc.GeneratePredictions(context.Background(), &models.Dataset{}, ForecastOptions{})
	assert.True(t, errors.Is(err, ErrEmptyDataset))
}

func TestGeneratePredictionsIsolatesEntityFailures(t *testing.T) {
	const marker = 999
	ds := monthlyDataset([]string{"ok1", "bad", "ok2"}, 12, func(p, m int) float64 {
		if p == 1 {
			return marker
		}
		return float64(10 + p + m)
	})
	svc := newTestDemandService(t, WithCandidates(func() []Regressor {
		return []Regressor{panicRegressor{marker: marker}}
	}))

	res, err := svc.GeneratePredictions(context.Background(), ds, ForecastOptions{Mapping: testMapping, TopN: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"bad"}, res.FailedProducts)
	require.Len(t, res.Predictions, 2)
	assert.Equal(t, "ok2", res.Predictions[0].Product)
	assert.Equal(t, "ok1", res.Predictions[1].Product)
	assert.Equal(t, []float64{5, 5, 5, 5, 5, 5}, res.Predictions[0].MonthlyPredictions)
}

func TestGeneratePredictionsCanceled(t *testing.T) {
	ds := monthlyDataset([]string{"A", "B"}, 12, func(int, int) float64 { return 10 })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDemandService(t).GeneratePredictions(ctx, ds, ForecastOptions{Mapping: testMapping})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFutureMonthsClampsDay(t *testing.T) {
	months := futureMonths(time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC), 4)
	require.Len(t, months, 4)
	assert.Equal(t, "2024-11", months[0].Date)
	assert.Equal(t, "2025年1月", months[2].MonthName)
	assert.Equal(t, "2025-02", months[3].Date)
}

func TestForecastEntityWithoutHistoryKeepsZeroForecast(t *testing.T) {
	svc := newTestDemandService(t)

	out := svc.forecastEntity("ghost", nil, NewModelRegistry(), 6)
	require.NoError(t, out.err)
	assert.Equal(t, "ghost", out.result.Product)
	assert.Equal(t, make([]float64, 6), out.result.MonthlyPredictions)
	assert.Zero(t, out.result.TotalPredicted)
	assert.Empty(t, out.history)
}
