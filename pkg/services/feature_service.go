package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"demand-insight-api/pkg/models"

	"go.uber.org/zap"
)

var (
	lagOffsets     = []int{1, 7, 30}
	rollingWindows = []int{7, 14, 30}
)

// FeatureTable 特徴量テーブル。Rowsは全体で日付昇順、time_indexは行位置
type FeatureTable struct {
	Rows          []models.FeatureRow
	DateFailures  int
	SkippedRows   int
	entityIndex   map[string][]int
	entityOrder   []string
	firstDate     time.Time
	lastDate      time.Time
	totalQuantity float64
}

// Len 行数
func (t *FeatureTable) Len() int {
	return len(t.Rows)
}

// Entities 製品IDを日付順の初出順で返す
func (t *FeatureTable) Entities() []string {
	out := make([]string, len(t.entityOrder))
	copy(out, t.entityOrder)
	return out
}

// EntityRows 製品の行を時系列順で返す（コピー）
func (t *FeatureTable) EntityRows(entity string) []models.FeatureRow {
	idx := t.entityIndex[entity]
	rows := make([]models.FeatureRow, len(idx))
	for i, j := range idx {
		rows[i] = t.Rows[j]
	}
	return rows
}

// EntityTotals 製品ごとの数量合計
func (t *FeatureTable) EntityTotals() map[string]float64 {
	totals := make(map[string]float64, len(t.entityIndex))
	for entity, idx := range t.entityIndex {
		for _, j := range idx {
			totals[entity] += t.Rows[j].Quantity
		}
	}
	return totals
}

// TopEntities 数量合計の多い順に最大n件（同数は製品ID昇順）
func (t *FeatureTable) TopEntities(n int) []string {
	totals := t.EntityTotals()
	entities := make([]string, 0, len(totals))
	for e := range totals {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if totals[entities[i]] != totals[entities[j]] {
			return totals[entities[i]] > totals[entities[j]]
		}
		return entities[i] < entities[j]
	})
	if n > 0 && len(entities) > n {
		entities = entities[:n]
	}
	return entities
}

// DateRange 有効な日付の最小・最大
func (t *FeatureTable) DateRange() (time.Time, time.Time, bool) {
	return t.firstDate, t.lastDate, !t.lastDate.IsZero()
}

// TotalQuantity 全行の数量合計
func (t *FeatureTable) TotalQuantity() float64 {
	return t.totalQuantity
}

// FeatureService データセットから特徴量テーブルを作成する
type FeatureService struct {
	calendar *CalendarService
	logger   *zap.Logger
}

// NewFeatureService 新しい特徴量サービスを作成
func NewFeatureService(calendar *CalendarService, logger *zap.Logger) *FeatureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeatureService{calendar: calendar, logger: logger}
}

// stagedRow 並び替え前の中間表現
type stagedRow struct {
	entity    string
	date      time.Time
	dateValid bool
	quantity  float64
	seq       int
}

// BuildFeatures 19次元の特徴量テーブルを作成
func (fs *FeatureService) BuildFeatures(dataset *models.Dataset, mapping models.SchemaMapping) (*FeatureTable, error) {
	if dataset == nil || len(dataset.Records) == 0 {
		return nil, ErrEmptyDataset
	}
	if missing := mapping.Missing(models.RequiredRoles...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrSchemaUnresolved, missing)
	}
	productCol, _ := mapping.Column(models.RoleProduct)
	dateCol, _ := mapping.Column(models.RoleDate)
	quantityCol, _ := mapping.Column(models.RoleQuantity)

	table := &FeatureTable{entityIndex: map[string][]int{}}

	// 1. 日付の解析（失敗は欠損として扱う）
	staged := make([]stagedRow, 0, len(dataset.Records))
	for i, rec := range dataset.Records {
		if isMissing(rec[productCol]) {
			table.SkippedRows++
			continue
		}
		row := stagedRow{
			entity:   entityKey(rec[productCol]),
			quantity: quantityValue(rec[quantityCol]),
			seq:      i,
		}
		if t, err := parseDate(rec[dateCol]); err == nil {
			row.date, row.dateValid = t, true
		} else {
			table.DateFailures++
		}
		staged = append(staged, row)
	}
	if len(staged) == 0 {
		return nil, ErrEmptyDataset
	}
	if table.DateFailures > 0 {
		fs.logger.Warn("⚠️ 日付を解析できない行があります（欠損として扱います）",
			zap.Int("rows", table.DateFailures), zap.String("column", dateCol))
	}

	// 4. 全体を日付昇順に並べる（欠損日付は末尾、同順位は入力順）
	sort.SliceStable(staged, func(i, j int) bool {
		a, b := staged[i], staged[j]
		if a.dateValid != b.dateValid {
			return a.dateValid
		}
		if !a.dateValid {
			return false
		}
		return a.date.Before(b.date)
	})

	table.Rows = make([]models.FeatureRow, len(staged))
	for i, s := range staged {
		row := models.FeatureRow{
			Entity:    s.entity,
			Date:      s.date,
			DateValid: s.dateValid,
			Quantity:  s.quantity,
		}
		// 2-3. カレンダー・コンテキスト特徴量
		if s.dateValid {
			fs.fillCalendarFeatures(&row.Features, s.date)
			if table.firstDate.IsZero() || s.date.Before(table.firstDate) {
				table.firstDate = s.date
			}
			if s.date.After(table.lastDate) {
				table.lastDate = s.date
			}
		}
		row.Features[models.FeatTimeIndex] = float64(i)
		table.Rows[i] = row
		table.totalQuantity += s.quantity

		if _, ok := table.entityIndex[s.entity]; !ok {
			table.entityOrder = append(table.entityOrder, s.entity)
		}
		table.entityIndex[s.entity] = append(table.entityIndex[s.entity], i)
	}

	// 5-7. 製品ごとのラグ・移動統計・欠損補完
	for _, entity := range table.entityOrder {
		fs.fillHistoryFeatures(table.Rows, table.entityIndex[entity])
	}

	fs.logger.Debug("🧮 特徴量を作成しました",
		zap.Int("rows", len(table.Rows)),
		zap.Int("entities", len(table.entityOrder)),
		zap.Int("skipped", table.SkippedRows),
	)
	return table, nil
}

// fillCalendarFeatures 日付から決まる特徴量を設定
func (fs *FeatureService) fillCalendarFeatures(f *models.FeatureVector, date time.Time) {
	ctx := fs.calendar.Context(date)
	f[models.FeatYear] = float64(ctx.Year)
	f[models.FeatMonth] = float64(ctx.Month)
	f[models.FeatDay] = float64(ctx.Day)
	f[models.FeatDayOfWeek] = float64(ctx.DayOfWeek)
	f[models.FeatWeekOfYear] = float64(ctx.WeekOfYear)
	f[models.FeatQuarter] = float64(ctx.Quarter)
	f[models.FeatIsWeekend] = boolToFloat(ctx.IsWeekend)
	f[models.FeatSeasonalFactor] = ctx.SeasonalFactor
	f[models.FeatIsSpecialDay] = boolToFloat(ctx.IsSpecialDay)
}

// fillHistoryFeatures 製品内の行位置でラグと移動平均・標準偏差を計算し、欠損を補完する
func (fs *FeatureService) fillHistoryFeatures(rows []models.FeatureRow, idx []int) {
	n := len(idx)
	q := make([]float64, n)
	for i, j := range idx {
		q[i] = rows[j].Quantity
	}

	lagCols := []int{models.FeatLag1, models.FeatLag7, models.FeatLag30}
	rollCols := [][2]int{
		{models.FeatRollingMean7, models.FeatRollingStd7},
		{models.FeatRollingMean14, models.FeatRollingStd14},
		{models.FeatRollingMean30, models.FeatRollingStd30},
	}

	for i, j := range idx {
		f := &rows[j].Features
		for k, offset := range lagOffsets {
			if i >= offset {
				f[lagCols[k]] = q[i-offset]
			} else {
				f[lagCols[k]] = math.NaN()
			}
		}
		for k, w := range rollingWindows {
			lo := i - w + 1
			if lo < 0 {
				lo = 0
			}
			window := q[lo : i+1]
			f[rollCols[k][0]] = calculateMean(window)
			f[rollCols[k][1]] = calculateSampleStdDev(window)
		}
	}

	// ラグは前方補完のみ（後方補完すると自分の後の値が前の行に入る）
	for _, col := range lagCols {
		fillColumn(rows, idx, col, false)
	}
	for _, pair := range rollCols {
		fillColumn(rows, idx, pair[0], true)
		fillColumn(rows, idx, pair[1], true)
	}
}

// fillColumn 前方補完 → （必要なら）後方補完 → 0埋め
func fillColumn(rows []models.FeatureRow, idx []int, col int, backward bool) {
	last := math.NaN()
	for _, j := range idx {
		v := rows[j].Features[col]
		if math.IsNaN(v) {
			rows[j].Features[col] = last
		} else {
			last = v
		}
	}
	if backward {
		next := math.NaN()
		for i := len(idx) - 1; i >= 0; i-- {
			j := idx[i]
			v := rows[j].Features[col]
			if math.IsNaN(v) {
				rows[j].Features[col] = next
			} else {
				next = v
			}
		}
	}
	for _, j := range idx {
		if math.IsNaN(rows[j].Features[col]) {
			rows[j].Features[col] = 0
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
