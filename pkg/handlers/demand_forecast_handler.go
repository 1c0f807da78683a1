package handlers

import (
	"net/http"

	"demand-insight-api/pkg/models"
	"demand-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	maxHorizon = 24
	maxTopN    = 200
)

// ForecastDefaults クエリ未指定時の既定値
type ForecastDefaults struct {
	TopN    int
	Horizon int
}

// DemandForecastHandler 需要予測ハンドラー
type DemandForecastHandler struct {
	demandForecastService *services.DemandForecastService
	runs                  *lru.Cache[string, *models.PredictionResult]
	defaults              ForecastDefaults
	logger                *zap.Logger
}

// NewDemandForecastHandler 新しい需要予測ハンドラーを作成
// 完了した予測結果は直近cacheSize件までメモリに保持する
func NewDemandForecastHandler(svc *services.DemandForecastService, cacheSize int, defaults ForecastDefaults, logger *zap.Logger) (*DemandForecastHandler, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	runs, err := lru.New[string, *models.PredictionResult](cacheSize)
	if err != nil {
		return nil, err
	}
	if defaults.TopN <= 0 {
		defaults.TopN = services.DefaultTopN
	}
	if defaults.Horizon <= 0 {
		defaults.Horizon = services.DefaultHorizon
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DemandForecastHandler{
		demandForecastService: svc,
		runs:                  runs,
		defaults:              defaults,
		logger:                logger,
	}, nil
}

// PredictDemand 需要予測を実行
// JSONボディまたはmultipartのfile（.csv/.xlsx）を受け付け、top_n・horizonはクエリで指定
func (dfh *DemandForecastHandler) PredictDemand(c *gin.Context) {
	dataset, mapping, err := readDataset(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "データセットの読み込みに失敗しました", err)
		return
	}

	opts := services.ForecastOptions{
		Mapping: mapping,
		TopN:    queryInt(c, "top_n", dfh.defaults.TopN, maxTopN),
		Horizon: queryInt(c, "horizon", dfh.defaults.Horizon, maxHorizon),
	}

	result, err := dfh.demandForecastService.GeneratePredictions(c.Request.Context(), dataset, opts)
	if err != nil {
		dfh.logger.Warn("⚠️ 需要予測の実行に失敗", zap.Error(err))
		respondError(c, statusFor(err), "需要予測の実行に失敗しました", err)
		return
	}

	dfh.runs.Add(result.RunID, result)
	c.Set("run_id", result.RunID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetRun 保持している予測結果を実行IDで取得
func (dfh *DemandForecastHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	result, ok := dfh.runs.Get(id)
	if !ok {
		respondError(c, http.StatusNotFound, "指定された予測結果が見つかりません", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}
