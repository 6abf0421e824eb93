package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unknownService は未登録サービスへのリクエストに付与するラベル値。
// 任意のパスがラベルになりカーディナリティが増えるのを防ぐ。
const unknownService = "unknown"

// Metrics はGatewayサービスのPrometheusメトリクス。
type Metrics struct {
	// requestsTotal はサービス・結果ごとのリクエスト数。
	requestsTotal *prometheus.CounterVec
	// authChecksTotal は認証サービスによるトークン検証の結果ごとの回数。
	authChecksTotal *prometheus.CounterVec
	// upstreamErrorsTotal はサービス・失敗種類ごとの転送失敗数。
	upstreamErrorsTotal *prometheus.CounterVec
	// upstreamDuration はサービスごとの転送にかかった時間。
	upstreamDuration *prometheus.HistogramVec
	// breakerTransitions はサーキットブレーカーの状態遷移数。
	breakerTransitions *prometheus.CounterVec
}

// NewMetrics は reg にメトリクスを登録して返す。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "requests_total",
				Help:      "Total number of requests handled by the gateway",
			},
			[]string{"service", "outcome"},
		),
		authChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "auth",
				Name:      "checks_total",
				Help:      "Total number of token verifications delegated to the auth service",
			},
			[]string{"result"},
		),
		upstreamErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "upstream",
				Name:      "errors_total",
				Help:      "Total number of failed forwards by failure kind",
			},
			[]string{"service", "kind"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "upstream",
				Name:      "duration_seconds",
				Help:      "Duration of forwarded backend requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service"},
		),
		breakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "circuit_breaker",
				Name:      "transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"service", "from", "to"},
		),
	}
}
