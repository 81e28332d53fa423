package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"docs-ingestion-service/internal/domain/ports/adapter"
)

var _ adapter.EventBus = (*EventBus)(nil)

// EventBus publishes job lifecycle events as JSON on redis pub/sub channels.
// Channel names mirror the event names (job.started, job.progress, ...),
// prefixed so multiple deployments can share one redis.
type EventBus struct {
	client RedisClient
	prefix string
}

func NewEventBus(client RedisClient, prefix string) *EventBus {
	if prefix == "" {
		prefix = "ingest"
	}
	return &EventBus{client: client, prefix: prefix}
}

func (b *EventBus) Publish(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return b.client.Publish(ctx, b.prefix+":"+event, data)
}
