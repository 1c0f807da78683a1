package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"demand-insight-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMapping = models.SchemaMapping{
	models.RoleProduct:  "product",
	models.RoleDate:     "date",
	models.RoleQuantity: "qty",
}

// monthlyDataset 製品ごとにmonths件の月次データ（2023-01から）
func monthlyDataset(products []string, months int, qty func(p, m int) float64) *models.Dataset {
	ds := &models.Dataset{Columns: []string{"product", "date", "qty"}}
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for m := 0; m < months; m++ {
		for p, name := range products {
			ds.Records = append(ds.Records, models.Record{
				"product": name,
				"date":    start.AddDate(0, m, 0).Format("2006-01-02"),
				"qty":     qty(p, m),
			})
		}
	}
	return ds
}

func newTestFeatureService(t *testing.T) *FeatureService {
	t.Helper()
	return NewFeatureService(newTestCalendar(t), nil)
}

func TestBuildFeaturesRequiresRoles(t *testing.T) {
	fs := newTestFeatureService(t)
	ds := monthlyDataset([]string{"A"}, 3, func(int, int) float64 { return 1 })

	_, err := fs.BuildFeatures(ds, models.SchemaMapping{models.RoleProduct: "product"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaUnresolved))
	assert.Contains(t, err.Error(), "date")

	_, err = fs.BuildFeatures(&models.Dataset{}, testMapping)
	assert.True(t, errors.Is(err, ErrEmptyDataset))
}

func TestBuildFeaturesTimeIndexIsGlobalAndContiguous(t *testing.T) {
	fs := newTestFeatureService(t)
	// 入力は日付の逆順
	ds := &models.Dataset{Columns: []string{"product", "date", "qty"}}
	for i := 20; i >= 1; i-- {
		ds.Records = append(ds.Records, models.Record{
			"product": fmt.Sprintf("P%d", i%3),
			"date":    fmt.Sprintf("2024-03-%02d", i),
			"qty":     float64(i),
		})
	}

	table, err := fs.BuildFeatures(ds, testMapping)
	require.NoError(t, err)
	require.Equal(t, 20, table.Len())

	for i, row := range table.Rows {
		assert.Equal(t, float64(i), row.Features[models.FeatTimeIndex])
		if i > 0 {
			assert.False(t, row.Date.Before(table.Rows[i-1].Date))
		}
	}
}

func TestBuildFeaturesRollingMeanOfConstantSeries(t *testing.T) {
	fs := newTestFeatureService(t)
	ds := monthlyDataset([]string{"A", "B"}, 40, func(int, int) float64 { return 12 })

	table, err := fs.BuildFeatures(ds, testMapping)
	require.NoError(t, err)

	for _, row := range table.Rows {
		assert.Equal(t, 12.0, row.Features[models.FeatRollingMean7])
		assert.Equal(t, 12.0, row.Features[models.FeatRollingMean30])
		assert.Equal(t, 0.0, row.Features[models.FeatRollingStd14])
	}
}

func TestBuildFeaturesLagsAreRowOffsetsPerEntity(t *testing.T) {
	fs := newTestFeatureService(t)
	ds := monthlyDataset([]string{"A", "B"}, 12, func(p, m int) float64 { return float64(100*(p+1) + m + 1) })

	table, err := fs.BuildFeatures(ds, testMapping)
	require.NoError(t, err)

	rows := table.EntityRows("A")
	require.Len(t, rows, 12)
	// 2行目のlag_1は1行目の数量
	assert.Equal(t, rows[0].Quantity, rows[1].Features[models.FeatLag1])
	// 1行目のlag_1は補完値で、実際の1行目の値とは一致しない
	assert.Equal(t, 0.0, rows[0].Features[models.FeatLag1])
	assert.NotEqual(t, rows[0].Quantity, rows[0].Features[models.FeatLag1])
	// lag_7は7行前、それより前は前方補完または0
	assert.Equal(t, rows[2].Quantity, rows[9].Features[models.FeatLag7])
	assert.Equal(t, 0.0, rows[6].Features[models.FeatLag7])
	assert.Equal(t, 0.0, rows[11].Features[models.FeatLag30])

	// 他の製品の値が混ざらない
	b := table.EntityRows("B")
	assert.Equal(t, b[0].Quantity, b[1].Features[models.FeatLag1])
	assert.Equal(t, 201.0, b[1].Features[models.FeatLag1])
}

func TestBuildFeaturesRollingStdFirstRowIsBackfilled(t *testing.T) {
	fs := newTestFeatureService(t)
	ds := monthlyDataset([]string{"A"}, 3, func(_, m int) float64 { return []float64{2, 4, 9}[m] })

	table, err := fs.BuildFeatures(ds, testMapping)
	require.NoError(t, err)

	rows := table.EntityRows("A")
	// 1件だけの窓の標本標準偏差は未定義なので2行目の値で補完
	assert.InDelta(t, 1.4142135623730951, rows[1].Features[models.FeatRollingStd7], 1e-12)
	assert.Equal(t, rows[1].Features[models.FeatRollingStd7], rows[0].Features[models.FeatRollingStd7])
	assert.InDelta(t, 5.0, rows[2].Features[models.FeatRollingMean7], 1e-12)
}

func TestBuildFeaturesCalendarFeatures(t *testing.T) {
	fs := newTestFeatureService(t)
	ds := &models.Dataset{Columns: []string{"product", "date", "qty"}, Records: []models.Record{
		{"product": "A", "date": "2024-10-29", "qty": "7"},
		{"product": "A", "date": "not a date", "qty": "abc"},
		{"product": nil, "date": "2024-10-30", "qty": 3.0},
	}}

	table, err := fs.BuildFeatures(ds, testMapping)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, 1, table.DateFailures)
	assert.Equal(t, 1, table.SkippedRows)

	first := table.Rows[0]
	assert.True(t, first.DateValid)
	assert.Equal(t, 7.0, first.Quantity)
	assert.Equal(t, 2024.0, first.Features[models.FeatYear])
	assert.Equal(t, 10.0, first.Features[models.FeatMonth])
	assert.Equal(t, 29.0, first.Features[models.FeatDay])
	assert.Equal(t, 1.0, first.Features[models.FeatDayOfWeek])
	assert.Equal(t, 44.0, first.Features[models.FeatWeekOfYear])
	assert.Equal(t, 4.0, first.Features[models.FeatQuarter])
	assert.Equal(t, 0.0, first.Features[models.FeatIsWeekend])
	assert.Equal(t, 1.05, first.Features[models.FeatSeasonalFactor])
	assert.Equal(t, 1.0, first.Features[models.FeatIsSpecialDay])

	// 日付が解析できない行は末尾に並び、カレンダー特徴量は0
	last := table.Rows[1]
	assert.False(t, last.DateValid)
	assert.Equal(t, 0.0, last.Quantity)
	assert.Equal(t, 0.0, last.Features[models.FeatYear])
	assert.Equal(t, 0.0, last.Features[models.FeatSeasonalFactor])
	assert.Equal(t, 1.0, last.Features[models.FeatTimeIndex])
}

func TestFeatureTableTopEntities(t *testing.T) {
	fs := newTestFeatureService(t)
	ds := monthlyDataset([]string{"C", "A", "B"}, 4, func(p, _ int) float64 { return []float64{5, 10, 5}[p] })

	table, err := fs.BuildFeatures(ds, testMapping)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, table.TopEntities(0))
	assert.Equal(t, []string{"A", "B"}, table.TopEntities(2))
	assert.Equal(t, 80.0, table.TotalQuantity())

	first, last, ok := table.DateRange()
	require.True(t, ok)
	assert.Equal(t, "2023-01-01", first.Format("2006-01-02"))
	assert.Equal(t, "2023-04-01", last.Format("2006-01-02"))
	assert.Equal(t, []string{"C", "A", "B"}, table.Entities())
}
