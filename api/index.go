package handler

import (
	"log"
	"net/http"
	"sync"

	config "demand-insight-api/configs"
	"demand-insight-api/pkg/handlers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	app     *gin.Engine
	initErr error
	once    sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() (*gin.Engine, error) {
	once.Do(func() {
		// 環境変数はデプロイ先の設定から読み込まれるため、godotenvは呼び出しません。
		cfg := config.LoadConfig()

		logger, err := config.NewLogger(cfg.Environment, cfg.LogLevel)
		if err != nil {
			initErr = err
			return
		}
		calendarCfg, err := config.LoadCalendar(cfg.CalendarFile)
		if err != nil {
			initErr = err
			return
		}
		app, initErr = handlers.NewRouter(cfg, calendarCfg, prometheus.NewRegistry(), logger)
		if initErr == nil {
			logger.Info("🟢 Serverless handler initialized", zap.String("environment", cfg.Environment))
		}
	})
	return app, initErr
}

// Handler はサーバーレス環境からのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	engine, err := setupApp()
	if err != nil {
		log.Printf("❌ [Handler] 初期化に失敗: %v", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	engine.ServeHTTP(w, r)
}
