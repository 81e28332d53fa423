package repository

import (
	"context"
	"time"

	"docs-ingestion-service/internal/domain/model"
)

// JobUpdate is a partial update applied to a stored job. Nil fields are
// left untouched.
type JobUpdate struct {
	Status       *model.JobStatus
	Progress     *model.JobProgress
	ErrorMessage *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// JobRepository persists Job records. Options and progress are opaque
// structured payloads the store serializes verbatim.
type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	Update(ctx context.Context, tx Tx, id string, upd JobUpdate) error

	// FetchAndMarkProcessing atomically claims the oldest queued job and marks
	// it processing so no other worker picks it up. Returns domain.ErrNotFound
	// when the queue is empty.
	FetchAndMarkProcessing(ctx context.Context) (*model.Job, error)

	// DeleteOlderThan removes terminal jobs created before the cutoff and
	// returns the number of rows deleted.
	DeleteOlderThan(ctx context.Context, tx Tx, cutoff time.Time) (int, error)
}
