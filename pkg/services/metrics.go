package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics 予測パイプラインのPrometheusメトリクス
// nilのままでも各メソッドは安全に呼べる
type PipelineMetrics struct {
	RunsTotal       *prometheus.CounterVec
	EntitiesTrained *prometheus.CounterVec
	EntitiesFailed  prometheus.Counter
	RunDuration     prometheus.Histogram
}

// NewPipelineMetrics 指定のレジストリにメトリクスを登録する
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demand_forecast_runs_total",
				Help: "Number of forecast runs by outcome",
			},
			[]string{"outcome"},
		),
		EntitiesTrained: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demand_forecast_entities_trained_total",
				Help: "Number of products trained by method",
			},
			[]string{"method"},
		),
		EntitiesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "demand_forecast_entities_failed_total",
			Help: "Number of products whose forecast failed",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "demand_forecast_run_duration_seconds",
			Help:    "Duration of a full forecast run",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *PipelineMetrics) observeRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) observeEntity(method string) {
	if m == nil {
		return
	}
	m.EntitiesTrained.WithLabelValues(method).Inc()
}

func (m *PipelineMetrics) observeFailure() {
	if m == nil {
		return
	}
	m.EntitiesFailed.Inc()
}
