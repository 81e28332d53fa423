package metrics

import "docs-ingestion-service/internal/domain/ports/adapter"

// Sink adapts the pipeline's measurement port onto the package collectors.
// Unknown measurement names are dropped silently; metrics stay best-effort.
type Sink struct{}

var _ adapter.MetricsSink = Sink{}

func (Sink) Record(name string, value float64, unit string, tags map[string]string) {
	switch name {
	case "jobs_processed":
		IncJob(tags["status"])
	case "job_duration":
		ObserveJobDuration(tags["status"], value)
	case "pipeline_stage_latency":
		ObserveStageLatency(tags["stage"], value, tags["success"] == "true")
	case "chunks":
		AddChunks(tags["stage"], int(value))
	case "heap_used":
		SetHeapUsed(uint64(value))
	case "batch_size":
		SetBatchSize(tags["stage"], int(value))
	}
}

func (Sink) RecordAPICall(provider, operation string, latencyMs int, success bool) {
	ObserveAPICall(provider, operation, latencyMs, success)
}

func (Sink) RecordProcessingSpeed(operation string, itemsPerSecond float64) {
	SetProcessingSpeed(operation, itemsPerSecond)
}
