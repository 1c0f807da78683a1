package handlers

import (
	"net/http"

	config "demand-insight-api/configs"
	"demand-insight-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewRouter サービスとハンドラーを組み立ててルーターを返す
func NewRouter(cfg *config.Config, calendarCfg *config.CalendarConfig, registry *prometheus.Registry, logger *zap.Logger) (*gin.Engine, error) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// サービスの初期化
	calendar, err := services.NewCalendarService(calendarCfg)
	if err != nil {
		return nil, err
	}
	monitoringService := services.NewMonitoringService(logger)
	forecastService := services.NewDemandForecastService(calendar,
		services.WithLogger(logger),
		services.WithWorkers(cfg.ForecastWorkers),
		services.WithMetrics(services.NewPipelineMetrics(registry)),
	)

	// ハンドラーの初期化
	demandForecastHandler, err := NewDemandForecastHandler(forecastService, cfg.RunCacheSize,
		ForecastDefaults{TopN: cfg.ForecastTopN, Horizon: cfg.ForecastHorizon}, logger)
	if err != nil {
		return nil, err
	}
	schemaHandler := NewSchemaHandler(forecastService.Schema())
	adminHandler := NewAdminHandler(logger)
	monitoringHandler := NewMonitoringHandler(monitoringService)

	// 予測はCPU負荷が高いため実行数を制限する
	limit := rate.Inf
	if cfg.ForecastRate > 0 {
		limit = rate.Limit(cfg.ForecastRate)
	}
	limiter := rate.NewLimiter(limit, cfg.ForecastRate*2)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(monitoringService.LoggingMiddleware())
	r.Use(cors.Default())

	r.GET("/health", adminHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(apiKeyMiddleware(cfg.APIKey))
	{
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}

		v1.GET("/monitoring/logs", monitoringHandler.GetLogs)
		v1.POST("/schema/infer", schemaHandler.InferSchema)

		forecast := v1.Group("/forecast")
		forecast.Use(adminHandler.MaintenanceGuard())
		{
			forecast.POST("", rateLimitMiddleware(limiter), demandForecastHandler.PredictDemand)
			forecast.GET("/runs/:id", demandForecastHandler.GetRun)
		}
	}
	return r, nil
}

// apiKeyMiddleware API_KEYが設定されている場合のみX-API-KEYヘッダーを照合する
func apiKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware 許容数を超えたリクエストに429を返す
func rateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "Too many requests"})
			return
		}
		c.Next()
	}
}
