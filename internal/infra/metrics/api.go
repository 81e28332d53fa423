package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		externalAPICallsTotal,
		externalAPILatencyMs,
		embeddingTokensTotal,
		rateLimitTriggeredTotal,
	)
}

var (
	externalAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_api_calls_total",
			Help: "Calls to external providers by operation and outcome.",
		},
		[]string{"provider", "operation", "success"},
	)

	externalAPILatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_api_latency_ms",
			Help:    "External provider call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 15000},
		},
		[]string{"provider", "operation", "success"},
	)

	embeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_tokens_total",
			Help: "Sum of input tokens sent to embedding providers per model.",
		},
		[]string{"provider", "model"},
	)

	rateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "api_rate_limit_triggered_total",
			Help: "Total number of times API clients have been rate-limited.",
		},
	)
)

func ObserveAPICall(provider, operation string, latencyMs int, success bool) {
	lbl := []string{norm(provider), norm(operation), strconv.FormatBool(success)}
	externalAPICallsTotal.WithLabelValues(lbl...).Inc()
	externalAPILatencyMs.WithLabelValues(lbl...).Observe(float64(latencyMs))
}

func AddEmbeddingTokens(provider, model string, tokens int) {
	embeddingTokensTotal.WithLabelValues(norm(provider), norm(model)).Add(float64(tokens))
}

func IncRateLimitTriggered() {
	rateLimitTriggeredTotal.Inc()
}
