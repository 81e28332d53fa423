package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		heapUsedBytes,
		adaptiveBatchSize,
	)
}

var (
	heapUsedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_heap_used_bytes",
			Help: "Heap bytes in use as sampled by the adaptive batch controller.",
		},
	)

	adaptiveBatchSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adaptive_batch_size",
			Help: "Current adaptive batch size per pipeline stage.",
		},
		[]string{"stage"},
	)
)

func SetHeapUsed(bytes uint64) {
	heapUsedBytes.Set(float64(bytes))
}

func SetBatchSize(stage string, size int) {
	adaptiveBatchSize.WithLabelValues(norm(stage)).Set(float64(size))
}
