package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"demand-insight-api/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTopN 既定の対象製品数
	DefaultTopN = 20
	// DefaultWorkers 既定の並列数
	DefaultWorkers = 4
)

// ForecastOptions 予測実行のオプション
type ForecastOptions struct {
	// Mapping 指定時はスキーマ推定を省略する
	Mapping models.SchemaMapping
	TopN    int
	Horizon int
}

// DemandForecastService 需要予測サービス
// スキーマ推定→特徴量→製品ごとの学習・予測→推奨事項までを束ねる
type DemandForecastService struct {
	calendar   *CalendarService
	schema     *SchemaService
	features   *FeatureService
	trainer    *ModelTrainer
	forecaster *Forecaster
	recs       *RecommendationService
	metrics    *PipelineMetrics
	logger     *zap.Logger
	workers    int
	now        func() time.Time
	candidates CandidateFactory
}

// DemandForecastOption 生成オプション
type DemandForecastOption func(*DemandForecastService)

// WithLogger ロガーを設定
func WithLogger(logger *zap.Logger) DemandForecastOption {
	return func(s *DemandForecastService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics メトリクスを設定
func WithMetrics(m *PipelineMetrics) DemandForecastOption {
	return func(s *DemandForecastService) { s.metrics = m }
}

// WithWorkers 製品ごとの処理の並列数
func WithWorkers(n int) DemandForecastOption {
	return func(s *DemandForecastService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithCandidates 候補モデルの生成方法を差し替える
func WithCandidates(factory CandidateFactory) DemandForecastOption {
	return func(s *DemandForecastService) { s.candidates = factory }
}

// WithServiceClock 現在時刻の取得方法を差し替える
func WithServiceClock(now func() time.Time) DemandForecastOption {
	return func(s *DemandForecastService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDemandForecastService 新しい需要予測サービスを作成
func NewDemandForecastService(calendar *CalendarService, opts ...DemandForecastOption) *DemandForecastService {
	s := &DemandForecastService{
		calendar: calendar,
		logger:   zap.NewNop(),
		workers:  DefaultWorkers,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.schema = NewSchemaService(WithSchemaLogger(s.logger))
	s.features = NewFeatureService(calendar, s.logger)
	s.trainer = NewModelTrainer(s.candidates, s.logger)
	s.forecaster = NewForecaster(calendar, WithClock(s.now), WithForecastLogger(s.logger))
	s.recs = NewRecommendationService()
	return s
}

// Schema スキーマ推定サービス
func (s *DemandForecastService) Schema() *SchemaService {
	return s.schema
}

// entityOutcome 製品ごとの処理結果
type entityOutcome struct {
	result  models.ForecastResult
	history []float64
	err     error
}

// GeneratePredictions データセットから上位製品の予測と推奨事項を作成
// 製品単位の失敗は記録して除外し、エラーになるのはスキーマ・特徴量の段階だけ
func (s *DemandForecastService) GeneratePredictions(ctx context.Context, dataset *models.Dataset, opts ForecastOptions) (*models.PredictionResult, error) {
	start := time.Now()
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}

	mapping := opts.Mapping
	if len(mapping) == 0 {
		if dataset == nil || len(dataset.Records) == 0 {
			s.metrics.observeRun("error", time.Since(start))
			return nil, ErrEmptyDataset
		}
		mapping = s.schema.InferSchema(dataset).Mapping
	}

	table, err := s.features.BuildFeatures(dataset, mapping)
	if err != nil {
		s.metrics.observeRun("error", time.Since(start))
		return nil, fmt.Errorf("特徴量の作成に失敗: %w", err)
	}

	top := table.TopEntities(opts.TopN)
	s.logger.Info("🚀 需要予測を開始",
		zap.Int("rows", table.Len()),
		zap.Int("products", len(table.Entities())),
		zap.Int("top_n", len(top)),
		zap.Int("horizon", opts.Horizon),
		zap.Int("workers", s.workers),
	)

	registry := NewModelRegistry()
	outcomes := make([]entityOutcome, len(top))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, entity := range top {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.forecastEntity(entity, table.EntityRows(entity), registry, opts.Horizon)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.observeRun("canceled", time.Since(start))
		return nil, fmt.Errorf("需要予測が中断されました: %w", err)
	}

	var (
		predictions   []models.ForecastResult
		failed        []string
		totalAccuracy float64
	)
	histories := make(map[string][]float64, len(top))
	for i, o := range outcomes {
		if o.err != nil {
			failed = append(failed, top[i])
			s.metrics.observeFailure()
			s.logger.Warn("⚠️ 製品の予測に失敗したため除外します", zap.String("entity", top[i]), zap.Error(o.err))
			continue
		}
		predictions = append(predictions, o.result)
		histories[o.result.Product] = o.history
		totalAccuracy += o.result.Accuracy
		s.metrics.observeEntity(string(o.result.Metrics.Method))
	}

	accuracy := placeholderAccuracy
	if len(predictions) > 0 {
		accuracy = totalAccuracy / float64(len(predictions))
	}

	result := &models.PredictionResult{
		RunID:            uuid.NewString(),
		Schema:           mapping,
		Predictions:      predictions,
		Accuracy:         roundTo(accuracy, 1),
		TotalProducts:    len(predictions),
		FailedProducts:   failed,
		Recommendations:  s.recs.Synthesize(predictions, histories),
		PredictionMonths: opts.Horizon,
		DataSummary:      s.dataSummary(dataset, table),
		GeneratedAt:      s.now().Format(time.RFC3339),
	}
	if result.Predictions == nil {
		result.Predictions = []models.ForecastResult{}
	}

	last := s.now()
	if _, l, ok := table.DateRange(); ok {
		last = l
		result.LastDataDate = l.Format("2006-01-02")
	}
	result.FutureMonths = futureMonths(last, opts.Horizon)

	s.metrics.observeRun("success", time.Since(start))
	s.logger.Info("✅ 需要予測が完了",
		zap.String("run_id", result.RunID),
		zap.Int("products", result.TotalProducts),
		zap.Int("failed", len(failed)),
		zap.Float64("accuracy", result.Accuracy),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// forecastEntity 1製品分の学習と予測。panicもエラーとして返す
func (s *DemandForecastService) forecastEntity(entity string, rows []models.FeatureRow, registry *ModelRegistry, horizon int) (out entityOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("❌ 製品の処理中にpanicが発生",
				zap.String("entity", entity), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out = entityOutcome{err: fmt.Errorf("%w: %s: panic: %v", ErrModelFit, entity, r)}
		}
	}()

	model, err := s.trainer.Train(entity, rows, registry)
	if err != nil {
		return entityOutcome{err: err}
	}
	// 予測不能（モデルも履歴もない）はゼロ予測として残す
	preds, err := s.forecaster.Forecast(entity, rows, model, horizon)
	if err != nil && !errors.Is(err, ErrForecastUnavailable) {
		return entityOutcome{err: err}
	}

	history := make([]float64, len(rows))
	for i, r := range rows {
		history[i] = r.Quantity
	}
	return entityOutcome{
		result: models.ForecastResult{
			Product:            entity,
			MonthlyPredictions: preds,
			TotalPredicted:     calculateSum(preds),
			Accuracy:           model.Accuracy,
			Metrics:            model.Metrics,
		},
		history: history,
	}
}

func (s *DemandForecastService) dataSummary(dataset *models.Dataset, table *FeatureTable) models.DataSummary {
	summary := models.DataSummary{
		TotalRows:      len(dataset.Records),
		UniqueProducts: len(table.Entities()),
		TotalQuantity:  float64(int64(table.TotalQuantity())),
	}
	if first, last, ok := table.DateRange(); ok {
		summary.DateRange = fmt.Sprintf("%s - %s", first.Format("2006-01-02"), last.Format("2006-01-02"))
	}
	return summary
}

// futureMonths 最終データ日から1〜horizonヶ月後のラベル
func futureMonths(last time.Time, horizon int) []models.FutureMonth {
	months := make([]models.FutureMonth, 0, horizon)
	for i := 1; i <= horizon; i++ {
		d := addMonthsClamped(last, i)
		months = append(months, models.FutureMonth{
			MonthIndex: i,
			MonthName:  fmt.Sprintf("%d年%d月", d.Year(), int(d.Month())),
			Date:       d.Format("2006-01"),
		})
	}
	return months
}
