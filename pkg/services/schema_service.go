package services

import (
	"math"
	"sort"
	"strings"

	"demand-insight-api/pkg/models"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// roleKeywords 役割ごとの列名キーワード（トルコ語・英語・日本語）
var roleKeywords = map[models.ColumnRole][]string{
	models.RoleProduct:  {"ürün", "product", "item", "stok", "mal", "article", "urun", "name", "ad", "isim", "商品", "製品", "品名"},
	models.RoleDate:     {"tarih", "date", "gün", "gun", "day", "zaman", "time", "dönem", "donem", "period", "日付", "年月", "日時"},
	models.RoleQuantity: {"adet", "miktar", "quantity", "qty", "amount", "sayi", "sayı", "number", "count", "piece", "数量", "個数", "販売数"},
	models.RolePrice:    {"fiyat", "price", "tutar", "ucret", "ücret", "cost", "birim", "unit", "単価", "価格"},
	models.RoleRevenue:  {"gelir", "revenue", "sales", "satış", "satis", "toplam", "total", "売上", "売上高"},
	models.RoleCost:     {"maliyet", "cost", "gider", "expense", "alış", "alis", "purchase", "原価", "費用"},
	models.RoleCategory: {"kategori", "category", "grup", "group", "type", "tip", "tür", "tur", "class", "カテゴリ", "分類"},
	models.RoleSupplier: {"tedarikçi", "tedarikci", "supplier", "vendor", "sağlayıcı", "saglayici", "仕入先", "メーカー"},
	models.RoleLocation: {"konum", "location", "yer", "place", "şube", "sube", "branch", "店舗", "地域"},
}

const (
	// roleThreshold この値を超えたスコアの列だけを採用する
	roleThreshold   = 40.0
	fuzzyThreshold  = 0.6
	dateScore       = 90.0
	monetaryScore   = 60.0
	quantityScore   = 65.0
	dateSampleSize  = 10
	profileSamples  = 3
	profileTopItems = 10
)

// SchemaService 列名と内容から列の役割を推定する
type SchemaService struct {
	logger        *zap.Logger
	enforceUnique bool
}

// SchemaOption SchemaServiceの生成オプション
type SchemaOption func(*SchemaService)

// WithSchemaLogger ロガーを設定
func WithSchemaLogger(logger *zap.Logger) SchemaOption {
	return func(s *SchemaService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEnforceUnique 1列1役割の割当を強制する（既定は無効）
func WithEnforceUnique(enabled bool) SchemaOption {
	return func(s *SchemaService) {
		s.enforceUnique = enabled
	}
}

// NewSchemaService 新しいスキーマ推定サービスを作成
func NewSchemaService(opts ...SchemaOption) *SchemaService {
	s := &SchemaService{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// columnStats 内容ヒューリスティック用の列統計
type columnStats struct {
	nonMissing int
	numeric    bool
	integral   bool
	max        float64
	median     float64
	dateLike   bool
}

// InferSchema データセットの各列に役割を割り当てる（決定的・副作用なし）
func (s *SchemaService) InferSchema(dataset *models.Dataset) models.SchemaInference {
	inference := models.SchemaInference{
		Mapping: models.SchemaMapping{},
		Scores:  make(map[models.ColumnRole]map[string]float64, len(models.AllRoles)),
		Best:    map[models.ColumnRole]float64{},
		Shared:  map[string][]models.ColumnRole{},
		Unique:  s.enforceUnique,
	}
	if dataset == nil {
		inference.Missing = append(inference.Missing, models.RequiredRoles...)
		return inference
	}

	// Caserは状態を持つので呼び出しごとに作る
	lower := cases.Lower(language.Und)
	labels := make([]string, len(dataset.Columns))
	stats := make([]columnStats, len(dataset.Columns))
	for i, col := range dataset.Columns {
		labels[i] = normalizeLabel(lower, col)
		stats[i] = analyzeColumn(dataset.Column(col))
	}

	for _, role := range models.AllRoles {
		row := make(map[string]float64, len(dataset.Columns))
		bestCol, bestScore := "", 0.0
		for i, col := range dataset.Columns {
			score := scoreColumn(role, labels[i], stats[i])
			row[col] = score
			// 同点なら先に現れた列を優先
			if score > bestScore {
				bestCol, bestScore = col, score
			}
		}
		inference.Scores[role] = row
		if !s.enforceUnique && bestCol != "" && bestScore > roleThreshold {
			inference.Mapping[role] = bestCol
			inference.Best[role] = bestScore
		}
	}

	if s.enforceUnique {
		s.assignUnique(dataset.Columns, &inference)
	} else {
		for _, role := range models.AllRoles {
			if col, ok := inference.Mapping[role]; ok {
				inference.Shared[col] = append(inference.Shared[col], role)
			}
		}
		for col, roles := range inference.Shared {
			if len(roles) < 2 {
				delete(inference.Shared, col)
			}
		}
	}

	inference.Missing = inference.Mapping.Missing(models.RequiredRoles...)

	s.logger.Info("🔍 スキーマ推定完了",
		zap.Int("columns", len(dataset.Columns)),
		zap.Any("mapping", inference.Mapping),
		zap.Any("missing", inference.Missing),
	)
	if len(inference.Shared) > 0 {
		s.logger.Warn("⚠️ 同じ列が複数の役割に割り当てられました", zap.Any("shared", inference.Shared))
	}
	return inference
}

// assignUnique スコアの高い順に、役割と列がどちらも未使用の組を採用する
func (s *SchemaService) assignUnique(columns []string, inference *models.SchemaInference) {
	type candidate struct {
		role     models.ColumnRole
		roleRank int
		col      string
		colRank  int
		score    float64
	}
	var cands []candidate
	for ri, role := range models.AllRoles {
		for ci, col := range columns {
			if score := inference.Scores[role][col]; score > roleThreshold {
				cands = append(cands, candidate{role, ri, col, ci, score})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].roleRank != cands[j].roleRank {
			return cands[i].roleRank < cands[j].roleRank
		}
		return cands[i].colRank < cands[j].colRank
	})
	used := map[string]bool{}
	for _, c := range cands {
		if _, done := inference.Mapping[c.role]; done || used[c.col] {
			continue
		}
		inference.Mapping[c.role] = c.col
		inference.Best[c.role] = c.score
		used[c.col] = true
	}
}

// normalizeLabel 小文字化・NFC正規化・前後空白除去
func normalizeLabel(lower cases.Caser, label string) string {
	l := lower.String(norm.NFC.String(strings.TrimSpace(label)))
	// トルコ語の"İ"は小文字化で結合ドットが残るので取り除く
	return strings.ReplaceAll(l, "\u0307", "")
}

// scoreColumn 3種類のシグナルの最大値
func scoreColumn(role models.ColumnRole, label string, st columnStats) float64 {
	best := 0.0
	for _, kw := range roleKeywords[role] {
		if strings.Contains(label, kw) || strings.Contains(kw, label) {
			if score := float64(len([]rune(kw))); score > best {
				best = score
			}
		}
		if ratio := similarityRatio(label, kw); ratio > fuzzyThreshold && ratio*100 > best {
			best = ratio * 100
		}
	}

	switch role {
	case models.RoleDate:
		if st.dateLike && dateScore > best {
			best = dateScore
		}
	case models.RolePrice, models.RoleRevenue, models.RoleCost:
		if st.numeric && st.max > 0 && st.median > 1 && monetaryScore > best {
			best = monetaryScore
		}
	case models.RoleQuantity:
		if st.numeric && st.integral && quantityScore > best {
			best = quantityScore
		}
	}
	return best
}

// analyzeColumn 欠損以外の値から列の性質を調べる
func analyzeColumn(values []interface{}) columnStats {
	st := columnStats{numeric: true, integral: true}
	var nums []float64
	dateChecked := 0
	st.dateLike = true
	for _, v := range values {
		if isMissing(v) {
			continue
		}
		st.nonMissing++
		if dateChecked < dateSampleSize {
			if _, err := parseDate(v); err != nil {
				st.dateLike = false
			}
			dateChecked++
		}
		if !st.numeric {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			st.numeric = false
			continue
		}
		nums = append(nums, f)
	}
	// 値のない列はどの内容判定にも該当させない（日付扱いもしない）
	if st.nonMissing == 0 {
		return columnStats{}
	}
	if !st.numeric {
		st.integral = false
		return st
	}
	st.max = nums[0]
	for _, f := range nums {
		if f > st.max {
			st.max = f
		}
		if math.Trunc(f) != f {
			st.integral = false
		}
	}
	st.median = calculateMedian(nums)
	return st
}

// ProfileDataset 行数・列ごとの型・欠損数・サンプルと集計を返す
func (s *SchemaService) ProfileDataset(dataset *models.Dataset) models.DatasetProfile {
	inference := s.InferSchema(dataset)
	profile := models.DatasetProfile{Inference: inference}
	if dataset == nil {
		return profile
	}
	profile.RowCount = len(dataset.Records)
	profile.ColumnCount = len(dataset.Columns)

	for _, col := range dataset.Columns {
		values := dataset.Column(col)
		cp := models.ColumnProfile{Name: col, Sample: []interface{}{}}
		for _, v := range values {
			if isMissing(v) {
				cp.MissingCount++
				continue
			}
			if len(cp.Sample) < profileSamples {
				cp.Sample = append(cp.Sample, v)
			}
		}
		st := analyzeColumn(values)
		switch {
		case st.nonMissing == 0:
			cp.DataType = "empty"
		case st.numeric && st.integral:
			cp.DataType = "integer"
		case st.numeric:
			cp.DataType = "numeric"
		case st.dateLike:
			cp.DataType = "date"
		default:
			cp.DataType = "text"
		}
		profile.Columns = append(profile.Columns, cp)
	}

	profile.Summary = summarize(dataset, inference.Mapping)
	return profile
}

// summarize 解決済みの役割に基づく集計
func summarize(dataset *models.Dataset, mapping models.SchemaMapping) models.SummaryStatistics {
	var summary models.SummaryStatistics

	if col, ok := mapping.Column(models.RoleProduct); ok {
		counts := map[string]int{}
		for _, r := range dataset.Records {
			if isMissing(r[col]) {
				continue
			}
			counts[entityKey(r[col])]++
		}
		summary.UniqueProducts = len(counts)
		for p, n := range counts {
			summary.TopProducts = append(summary.TopProducts, models.ProductCount{Product: p, Rows: n})
		}
		sort.Slice(summary.TopProducts, func(i, j int) bool {
			a, b := summary.TopProducts[i], summary.TopProducts[j]
			if a.Rows != b.Rows {
				return a.Rows > b.Rows
			}
			return a.Product < b.Product
		})
		if len(summary.TopProducts) > profileTopItems {
			summary.TopProducts = summary.TopProducts[:profileTopItems]
		}
	}

	numericColumn := func(role models.ColumnRole) ([]float64, bool) {
		col, ok := mapping.Column(role)
		if !ok {
			return nil, false
		}
		var out []float64
		for _, r := range dataset.Records {
			if f, ok := toFloat(r[col]); ok {
				out = append(out, f)
			}
		}
		return out, len(out) > 0
	}

	if q, ok := numericColumn(models.RoleQuantity); ok {
		summary.TotalQuantity = calculateSum(q)
		summary.AvgQuantity = calculateMean(q)
	}
	revenue, hasRevenue := numericColumn(models.RoleRevenue)
	if hasRevenue {
		summary.TotalRevenue = calculateSum(revenue)
		summary.AvgRevenue = calculateMean(revenue)
	}
	cost, hasCost := numericColumn(models.RoleCost)
	if hasCost {
		summary.TotalCost = calculateSum(cost)
	}
	if hasRevenue && hasCost {
		profit := summary.TotalRevenue - summary.TotalCost
		summary.TotalProfit = &profit
		if summary.TotalRevenue > 0 {
			margin := profit / summary.TotalRevenue * 100
			summary.ProfitMargin = &margin
		}
	}
	return summary
}
