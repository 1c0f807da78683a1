package handlers

import (
	"fmt"
	"net/http"

	"demand-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// monitoringPeriods 集計期間の指定と時間数の対応
var monitoringPeriods = map[string]int{
	"1h":  1,
	"24h": 24,
	"7d":  24 * 7,
}

// MonitoringHandler はAPIリクエストと予測実行の集計を返すハンドラです。
type MonitoringHandler struct {
	Service *services.MonitoringService
}

func NewMonitoringHandler(service *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{Service: service}
}

// GetLogs は period (1h, 24h, 7d) で指定された期間のダッシュボードデータを返します。
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")
	hours, ok := monitoringPeriods[period]
	if !ok {
		respondError(c, http.StatusBadRequest, "不正な集計期間です", fmt.Errorf("period=%q (1h, 24h, 7d のいずれか)", period))
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, h.Service.GetDashboardData(hours))
}
