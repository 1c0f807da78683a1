package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	Port         string
	Environment  string
	APIKey       string
	LogLevel     string
	CalendarFile string

	// 予測パイプラインの既定値
	ForecastHorizon int
	ForecastTopN    int
	ForecastWorkers int
	RunCacheSize    int
	ForecastRate    int // 1秒あたりの予測実行数（バーストは2倍）
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		APIKey:          getEnv("API_KEY", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CalendarFile:    getEnv("CALENDAR_FILE", ""),
		ForecastHorizon: getEnvInt("FORECAST_HORIZON", 6),
		ForecastTopN:    getEnvInt("FORECAST_TOP_N", 20),
		ForecastWorkers: getEnvInt("FORECAST_WORKERS", 4),
		RunCacheSize:    getEnvInt("RUN_CACHE_SIZE", 64),
		ForecastRate:    getEnvInt("FORECAST_RATE", 5),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 整数の環境変数を取得（不正値・0以下はデフォルト）
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
