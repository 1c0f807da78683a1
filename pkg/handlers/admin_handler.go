package handlers

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler は管理者向け操作のハンドラです。
// メンテナンス中は予測APIが503を返します。
type AdminHandler struct {
	maintenance atomic.Bool
	logger      *zap.Logger
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{logger: logger}
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	h.maintenance.Store(true)
	h.logger.Warn("🛠️ メンテナンスモードを開始しました")
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	h.maintenance.Store(false)
	h.logger.Info("✅ メンテナンスモードを終了しました")
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode stopped"})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isMaintenanceMode": h.maintenance.Load()})
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	if h.maintenance.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "demand-insight-api"})
}

// MaintenanceGuard はメンテナンス中のリクエストを拒否するミドルウェアです。
func (h *AdminHandler) MaintenanceGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.maintenance.Load() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "メンテナンス中です。しばらくしてから再度お試しください。",
			})
			return
		}
		c.Next()
	}
}
