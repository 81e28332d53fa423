package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		stageLatencyMs,
		chunksTotal,
		processingSpeed,
		breakerState,
	)
}

var (
	stageLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_latency_ms",
			Help:    "Per-stage latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
		},
		[]string{"stage", "success"},
	)

	chunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_chunks_total",
			Help: "Chunks flowing through the pipeline by stage outcome.",
		},
		[]string{"stage"}, // 'created', 'embedded', 'stored'
	)

	processingSpeed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_processing_speed",
			Help: "Most recent per-stage throughput in items per second.",
		},
		[]string{"stage"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Breaker state per component: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"component"},
	)
)

func ObserveStageLatency(stage string, ms float64, success bool) {
	stageLatencyMs.WithLabelValues(norm(stage), strconv.FormatBool(success)).Observe(ms)
}

func AddChunks(stage string, count int) {
	chunksTotal.WithLabelValues(norm(stage)).Add(float64(count))
}

func SetProcessingSpeed(stage string, itemsPerSec float64) {
	processingSpeed.WithLabelValues(norm(stage)).Set(itemsPerSec)
}

func SetBreakerState(component string, state float64) {
	breakerState.WithLabelValues(norm(component)).Set(state)
}
