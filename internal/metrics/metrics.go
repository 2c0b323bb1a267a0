package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_analysis_total",
			Help: "Total number of idea analyses by strategy that produced the result",
		},
		[]string{"strategy"},
	)

	AnalysisFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_analysis_fallback_total",
			Help: "Total number of remote analyses that fell back to the mock strategy",
		},
		[]string{"reason"},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_llm_requests_total",
			Help: "Total number of LLM provider calls by outcome",
		},
		[]string{"provider", "outcome"},
	)

	RankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "persona_rank_duration_seconds",
			Help:    "Duration of rank requests served by the rating service",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "persona_websocket_connections",
			Help: "Number of open websocket connections",
		},
	)
)

// Telemetry records engine outcomes into the Prometheus counters above.
type Telemetry struct{}

func (Telemetry) RecordAnalysis(strategy string) {
	AnalysisTotal.WithLabelValues(strategy).Inc()
}

func (Telemetry) RecordFallback(reason string) {
	AnalysisFallbackTotal.WithLabelValues(reason).Inc()
}
