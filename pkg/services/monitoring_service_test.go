package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ms := NewMonitoringService(nil)

	r := gin.New()
	r.Use(ms.LoggingMiddleware())
	r.POST("/api/v1/forecast", func(c *gin.Context) {
		c.Set("run_id", "run-1")
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/api/v1/monitoring/logs", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/v1/forecast", nil),
		httptest.NewRequest(http.MethodGet, "/boom", nil),
		httptest.NewRequest(http.MethodGet, "/missing", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/monitoring/logs", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	data := ms.GetDashboardData(1)
	assert.Equal(t, map[string]int{"/api/v1/forecast": 1, "/boom": 1, "/missing": 1}, data.Endpoints)
	assert.Equal(t, 1, data.ForecastRuns)
	require.Len(t, data.RecentErrors, 1)
	assert.Equal(t, "/boom", data.RecentErrors[0].Path)

	require.Len(t, data.StatusCodes, 3)
	assert.Equal(t, 1, data.StatusCodes[0]["value"])
	assert.Equal(t, 1, data.StatusCodes[1]["value"])
	assert.Equal(t, 1, data.StatusCodes[2]["value"])

	require.Len(t, data.RequestsOverTime, 1)
	assert.Equal(t, 3, data.RequestsOverTime[0]["requests"])
}

func TestDashboardFiltersByPeriod(t *testing.T) {
	ms := NewMonitoringService(nil)
	now := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)
	ms.now = func() time.Time { return now }

	ms.LogRequest(LogEntry{Timestamp: now.Add(-30 * time.Minute), Path: "/a", StatusCode: 200, ResponseTime: 20 * time.Millisecond})
	ms.LogRequest(LogEntry{Timestamp: now.Add(-90 * time.Minute), Path: "/a", StatusCode: 200, ResponseTime: 40 * time.Millisecond})
	ms.LogRequest(LogEntry{Timestamp: now.Add(-5 * time.Hour), Path: "/old", StatusCode: 500})

	data := ms.GetDashboardData(3)
	assert.Equal(t, map[string]int{"/a": 2}, data.Endpoints)
	assert.Empty(t, data.RecentErrors)
	require.Len(t, data.AvgResponseTimes, 1)
	assert.Equal(t, int64(30), data.AvgResponseTimes[0]["responseTime"])

	require.Len(t, data.RequestsOverTime, 3)
	assert.Equal(t, "10:00", data.RequestsOverTime[0]["time"])
	assert.Equal(t, 1, data.RequestsOverTime[1]["requests"])
	assert.Equal(t, 1, data.RequestsOverTime[2]["requests"])
}

func TestLogRequestIsBounded(t *testing.T) {
	ms := NewMonitoringService(nil)
	for i := 0; i < maxRetainedLogs+5; i++ {
		ms.LogRequest(LogEntry{Path: "/x"})
	}
	assert.Len(t, ms.logs, maxRetainedLogs)
}
