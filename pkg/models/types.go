package models

import "time"

// Record 1行分の生データ（列ラベル -> 値、型は未確定）
type Record map[string]interface{}

// Dataset 取り込み済みの表データ。Columnsはヘッダー順を保持する
type Dataset struct {
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

// Column 指定列の値を行順に返す
func (d *Dataset) Column(name string) []interface{} {
	values := make([]interface{}, len(d.Records))
	for i, r := range d.Records {
		values[i] = r[name]
	}
	return values
}

// ColumnRole 列の意味的な役割
type ColumnRole string

const (
	RoleProduct  ColumnRole = "product"
	RoleDate     ColumnRole = "date"
	RoleQuantity ColumnRole = "quantity"
	RolePrice    ColumnRole = "price"
	RoleRevenue  ColumnRole = "revenue"
	RoleCost     ColumnRole = "cost"
	RoleCategory ColumnRole = "category"
	RoleSupplier ColumnRole = "supplier"
	RoleLocation ColumnRole = "location"
)

// AllRoles 推定順序（固定）
var AllRoles = []ColumnRole{
	RoleProduct, RoleDate, RoleQuantity,
	RolePrice, RoleRevenue, RoleCost,
	RoleCategory, RoleSupplier, RoleLocation,
}

// RequiredRoles 予測パイプラインに必須の役割
var RequiredRoles = []ColumnRole{RoleProduct, RoleDate, RoleQuantity}

// SchemaMapping 役割 -> 列ラベル（部分写像）
type SchemaMapping map[ColumnRole]string

// Column 役割に対応する列名を返す
func (m SchemaMapping) Column(role ColumnRole) (string, bool) {
	col, ok := m[role]
	return col, ok && col != ""
}

// Missing 未解決の役割を返す
func (m SchemaMapping) Missing(roles ...ColumnRole) []ColumnRole {
	var missing []ColumnRole
	for _, r := range roles {
		if _, ok := m.Column(r); !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// SchemaInference スキーマ推定結果（スコア行列付き）
type SchemaInference struct {
	Mapping SchemaMapping                     `json:"mapping"`
	Scores  map[ColumnRole]map[string]float64 `json:"scores"`  // role -> column -> score
	Best    map[ColumnRole]float64            `json:"best"`    // 採用された列のスコア
	Shared  map[string][]ColumnRole           `json:"shared"`  // 複数の役割に割り当てられた列
	Unique  bool                              `json:"unique"`  // 一対一割当を強制したか
	Missing []ColumnRole                      `json:"missing"` // 未解決の必須役割
}

// ColumnProfile 列ごとの概要
type ColumnProfile struct {
	Name         string        `json:"name"`
	DataType     string        `json:"data_type"` // "numeric", "integer", "date", "text", "empty"
	MissingCount int           `json:"missing_count"`
	Sample       []interface{} `json:"sample"`
}

// SummaryStatistics データセットの集計
type SummaryStatistics struct {
	UniqueProducts int            `json:"unique_products,omitempty"`
	TopProducts    []ProductCount `json:"top_products,omitempty"`
	TotalQuantity  float64        `json:"total_quantity,omitempty"`
	AvgQuantity    float64        `json:"avg_quantity,omitempty"`
	TotalRevenue   float64        `json:"total_revenue,omitempty"`
	AvgRevenue     float64        `json:"avg_revenue,omitempty"`
	TotalCost      float64        `json:"total_cost,omitempty"`
	TotalProfit    *float64       `json:"total_profit,omitempty"`
	ProfitMargin   *float64       `json:"profit_margin,omitempty"`
}

// ProductCount 製品ごとの行数
type ProductCount struct {
	Product string `json:"product"`
	Rows    int    `json:"rows"`
}

// DatasetProfile ファイル分析の結果
type DatasetProfile struct {
	RowCount    int               `json:"row_count"`
	ColumnCount int               `json:"column_count"`
	Columns     []ColumnProfile   `json:"columns"`
	Inference   SchemaInference   `json:"inference"`
	Summary     SummaryStatistics `json:"summary"`
}

// FeatureCount 特徴量ベクトルの次元数
const FeatureCount = 19

// FeatureNames 特徴量の名前と順序（固定）
var FeatureNames = [FeatureCount]string{
	"year", "month", "day", "day_of_week", "week_of_year", "quarter",
	"is_weekend", "seasonal_factor", "is_special_day", "time_index",
	"lag_1", "lag_7", "lag_30",
	"rolling_mean_7", "rolling_std_7",
	"rolling_mean_14", "rolling_std_14",
	"rolling_mean_30", "rolling_std_30",
}

// 特徴量インデックス
const (
	FeatYear = iota
	FeatMonth
	FeatDay
	FeatDayOfWeek
	FeatWeekOfYear
	FeatQuarter
	FeatIsWeekend
	FeatSeasonalFactor
	FeatIsSpecialDay
	FeatTimeIndex
	FeatLag1
	FeatLag7
	FeatLag30
	FeatRollingMean7
	FeatRollingStd7
	FeatRollingMean14
	FeatRollingStd14
	FeatRollingMean30
	FeatRollingStd30
)

// FeatureVector 固定長の特徴量ベクトル
type FeatureVector [FeatureCount]float64

// FeatureRow 1行分の特徴量（計算後は不変）
type FeatureRow struct {
	Entity    string        `json:"entity"`
	Date      time.Time     `json:"date"`
	DateValid bool          `json:"date_valid"`
	Quantity  float64       `json:"quantity"`
	Features  FeatureVector `json:"features"`
}

// Feature 名前で特徴量を取得
func (r FeatureRow) Feature(name string) (float64, bool) {
	for i, n := range FeatureNames {
		if n == name {
			return r.Features[i], true
		}
	}
	return 0, false
}

// WeatherReading 気象情報（スタブ）
type WeatherReading struct {
	Temperature     float64 `json:"temperature"`
	Condition       string  `json:"condition"` // "rainy" or "sunny"
	Humidity        float64 `json:"humidity"`
	RainProbability float64 `json:"rain_probability"`
}

// SpecialDay 特別日
type SpecialDay struct {
	Name   string `json:"name"`
	Type   string `json:"type"`   // "public_holiday", "holiday_eve"
	Impact string `json:"impact"` // "high", "medium", "low"
}

// CalendarContext 日付ごとの文脈情報（日付の純関数）
type CalendarContext struct {
	Date           string         `json:"date"`
	Year           int            `json:"year"`
	Month          int            `json:"month"`
	Day            int            `json:"day"`
	DayOfWeek      int            `json:"day_of_week"` // 月曜=0
	IsWeekend      bool           `json:"is_weekend"`
	WeekOfYear     int            `json:"week_of_year"`
	Quarter        int            `json:"quarter"`
	Season         string         `json:"season"`
	SeasonalFactor float64        `json:"seasonal_factor"`
	IsSpecialDay   bool           `json:"is_special_day"`
	SpecialDay     *SpecialDay    `json:"special_day,omitempty"`
	Weather        WeatherReading `json:"weather"`
}

// TrainingMethod 学習方式
type TrainingMethod string

const (
	MethodAverage TrainingMethod = "average"
	MethodModel   TrainingMethod = "model"
)

// TrainingMetrics 学習時の指標
type TrainingMetrics struct {
	Method            TrainingMethod     `json:"method"`
	Model             string             `json:"model,omitempty"`
	RMSE              float64            `json:"rmse,omitempty"`
	Accuracy          float64            `json:"accuracy"`
	AvgQuantity       float64            `json:"avg_quantity,omitempty"`
	TrainSamples      int                `json:"train_samples,omitempty"`
	TestSamples       int                `json:"test_samples,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	CandidateRMSE     map[string]float64 `json:"candidate_rmse,omitempty"`
}

// ForecastResult 製品ごとの予測結果
type ForecastResult struct {
	Product            string          `json:"product"`
	MonthlyPredictions []float64       `json:"monthly_predictions"`
	TotalPredicted     float64         `json:"total_predicted"`
	Accuracy           float64         `json:"accuracy"`
	Metrics            TrainingMetrics `json:"metrics"`
}

// RecommendationTier 変化率の段階
type RecommendationTier string

const (
	TierSevereIncrease   RecommendationTier = "severe_increase"
	TierModerateIncrease RecommendationTier = "moderate_increase"
	TierMildIncrease     RecommendationTier = "mild_increase"
	TierStable           RecommendationTier = "stable"
	TierVolatile         RecommendationTier = "stable_volatile"
	TierMildDecrease     RecommendationTier = "mild_decrease"
	TierModerateDecrease RecommendationTier = "moderate_decrease"
	TierSevereDecrease   RecommendationTier = "severe_decrease"
)

// Priority 推奨の優先度
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank 並び替え用の順位（high=0）
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Recommendation 在庫に関する推奨事項
type Recommendation struct {
	Product          string             `json:"product"`
	Recommendation   string             `json:"recommendation"`
	ChangePercentage float64            `json:"change_percentage"`
	Trend            float64            `json:"trend"`
	Volatility       float64            `json:"volatility"`
	Tier             RecommendationTier `json:"tier"`
	Priority         Priority           `json:"priority"`
}

// FutureMonth 予測対象月のラベル
type FutureMonth struct {
	MonthIndex int    `json:"month_index"`
	MonthName  string `json:"month_name"`
	Date       string `json:"date"` // YYYY-MM
}

// DataSummary 入力データの概要
type DataSummary struct {
	TotalRows      int     `json:"total_rows"`
	DateRange      string  `json:"date_range"`
	UniqueProducts int     `json:"unique_products"`
	TotalQuantity  float64 `json:"total_quantity"`
}

// PredictionResult 1回の分析実行の結果
type PredictionResult struct {
	RunID            string           `json:"run_id"`
	Schema           SchemaMapping    `json:"schema"`
	Predictions      []ForecastResult `json:"predictions"`
	Accuracy         float64          `json:"accuracy"`
	TotalProducts    int              `json:"total_products"`
	FailedProducts   []string         `json:"failed_products,omitempty"`
	Recommendations  []Recommendation `json:"recommendations"`
	PredictionMonths int              `json:"prediction_months"`
	FutureMonths     []FutureMonth    `json:"future_months"`
	LastDataDate     string           `json:"last_data_date"`
	DataSummary      DataSummary      `json:"data_summary"`
	GeneratedAt      string           `json:"generated_at"`
}
