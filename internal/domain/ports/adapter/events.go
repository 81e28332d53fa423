package adapter

import "context"

// Lifecycle event names announced by the job queue.
const (
	EventJobStarted   = "job.started"
	EventJobProgress  = "job.progress"
	EventJobCompleted = "job.completed"
)

// EventBus publishes job lifecycle events. Fire-and-forget: publish failures
// are logged by implementations and never fail the caller.
type EventBus interface {
	Publish(ctx context.Context, event string, payload any) error
}

// MetricsSink records operational measurements. Best-effort: implementations
// must never return an error that could fail a job.
type MetricsSink interface {
	Record(name string, value float64, unit string, tags map[string]string)
	RecordAPICall(provider, operation string, latencyMs int, success bool)
	RecordProcessingSpeed(operation string, itemsPerSecond float64)
}
