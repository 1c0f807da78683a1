package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// maxRetainedLogs 保持するリクエストログの上限（古いものから破棄）
	maxRetainedLogs  = 10000
	recentErrorLimit = 10
)

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
	RunID        string        `json:"run_id,omitempty"`
}

// MonitoringService はAPIのモニタリング機能を提供します。
type MonitoringService struct {
	logs   []LogEntry
	mu     sync.RWMutex
	logger *zap.Logger
	now    func() time.Time
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService(logger *zap.Logger) *MonitoringService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonitoringService{
		logs:   make([]LogEntry, 0),
		logger: logger,
		now:    time.Now,
	}
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - maxRetainedLogs; over > 0 {
		s.logs = append(s.logs[:0], s.logs[over:]...)
	}
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
// ハンドラがc.Set("run_id", ...)した場合は予測実行IDも残す
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()

		path := c.Request.URL.Path
		entry := LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
			RunID:        c.GetString("run_id"),
		}

		fields := []zap.Field{
			zap.String("method", entry.Method),
			zap.String("path", path),
			zap.Int("status", entry.StatusCode),
			zap.Duration("latency", entry.ResponseTime),
		}
		if entry.RunID != "" {
			fields = append(fields, zap.String("run_id", entry.RunID))
		}
		switch {
		case entry.StatusCode >= 500:
			s.logger.Error("❌ リクエスト失敗", append(fields, zap.String("error", c.Errors.String()))...)
		case entry.StatusCode >= 400:
			s.logger.Warn("⚠️ クライアントエラー", fields...)
		default:
			s.logger.Debug("📨 リクエスト", fields...)
		}

		// モニタリング自体とメトリクス取得は集計しない
		if strings.HasPrefix(path, "/api/v1/monitoring") || path == "/metrics" {
			return
		}
		s.LogRequest(entry)
	}
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      []map[string]interface{} `json:"statusCodes"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
	ForecastRuns     int                      `json:"forecastRuns"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, log := range s.logs {
		if log.Timestamp.After(since) {
			filtered = append(filtered, log)
		}
	}

	// 時間ごとのリクエスト数（過去→現在）
	requestsOverTime := make([]map[string]interface{}, periodHours)
	hourly := make(map[int64]int)
	for _, log := range filtered {
		hourly[log.Timestamp.UTC().Truncate(time.Hour).Unix()]++
	}
	for i := 0; i < periodHours; i++ {
		bucket := now.Add(-time.Duration(periodHours-1-i) * time.Hour).Truncate(time.Hour)
		requestsOverTime[i] = map[string]interface{}{
			"time":     bucket.Format("15:00"),
			"requests": hourly[bucket.Unix()],
		}
	}

	endpoints := make(map[string]int)
	statusCodes := map[string]int{"2xx Success": 0, "4xx Client Error": 0, "5xx Server Error": 0}
	responseTimeSum := make(map[string]time.Duration)
	forecastRuns := 0
	for _, log := range filtered {
		endpoints[log.Path]++
		responseTimeSum[log.Path] += log.ResponseTime
		switch {
		case log.StatusCode >= 200 && log.StatusCode < 300:
			statusCodes["2xx Success"]++
		case log.StatusCode >= 400 && log.StatusCode < 500:
			statusCodes["4xx Client Error"]++
		case log.StatusCode >= 500:
			statusCodes["5xx Server Error"]++
		}
		if log.RunID != "" {
			forecastRuns++
		}
	}

	statusNames := []string{"2xx Success", "4xx Client Error", "5xx Server Error"}
	statusCodesSlice := make([]map[string]interface{}, 0, len(statusNames))
	for _, name := range statusNames {
		statusCodesSlice = append(statusCodesSlice, map[string]interface{}{"name": name, "value": statusCodes[name]})
	}

	paths := make([]string, 0, len(responseTimeSum))
	for path := range responseTimeSum {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	avgResponseTimes := make([]map[string]interface{}, 0, len(paths))
	for _, path := range paths {
		avg := responseTimeSum[path].Milliseconds() / int64(endpoints[path])
		avgResponseTimes = append(avgResponseTimes, map[string]interface{}{"endpoint": path, "responseTime": avg})
	}

	// 直近の5xx（新しい順）
	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < recentErrorLimit; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	return DashboardData{
		RequestsOverTime: requestsOverTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodesSlice,
		AvgResponseTimes: avgResponseTimes,
		RecentErrors:     recentErrors,
		ForecastRuns:     forecastRuns,
	}
}
