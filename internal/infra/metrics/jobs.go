package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsProcessedTotal,
		jobDurationMs,
		jobsCleanedTotal,
	)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_jobs_processed_total",
			Help: "Total number of ingestion jobs processed, labeled by status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	jobDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingestion_job_duration_ms",
			Help:    "End-to-end job duration distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 300000},
		},
		[]string{"status"},
	)

	jobsCleanedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestion_jobs_cleaned_total",
			Help: "Total number of terminal jobs removed by the cleanup worker.",
		},
	)
)

func IncJob(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveJobDuration(status string, ms float64) {
	jobDurationMs.WithLabelValues(norm(status)).Observe(ms)
}

func IncJobsCleaned(count int) {
	jobsCleanedTotal.Add(float64(count))
}
