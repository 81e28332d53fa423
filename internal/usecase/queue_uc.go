package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docs-ingestion-service/internal/domain"
	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/domain/ports/repository"
)

// JobQueue owns the job lifecycle: enqueue, status transition, progress
// merge, completion, cancellation, retry-as-new-job and cleanup. Jobs are
// mutated only through these methods.
type JobQueue struct {
	jobs repository.JobRepository
	bus  adapter.EventBus
	log  zerolog.Logger
}

func NewJobQueue(jobs repository.JobRepository, bus adapter.EventBus, logger *zerolog.Logger) *JobQueue {
	return &JobQueue{
		jobs: jobs,
		bus:  bus,
		log:  logger.With().Str("component", "JobQueue").Logger(),
	}
}

type jobEvent struct {
	JobID    string             `json:"jobId"`
	URL      string             `json:"url,omitempty"`
	Status   model.JobStatus    `json:"status,omitempty"`
	Progress *model.JobProgress `json:"progress,omitempty"`
}

// publish is fire-and-forget: event-bus failures are logged, never returned.
func (q *JobQueue) publish(ctx context.Context, event string, payload jobEvent) {
	if q.bus == nil {
		return
	}
	if err := q.bus.Publish(ctx, event, payload); err != nil {
		q.log.Warn().Err(err).Str("event", event).Str("job_id", payload.JobID).Msg("event publish failed")
	}
}

// Enqueue persists a new queued job and announces job.started.
func (q *JobQueue) Enqueue(ctx context.Context, url string, opts model.JobOptions) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", domain.ErrInvalidArgument
	}

	job := model.NewJob(uuid.NewString(), url, opts)
	if err := q.jobs.Create(ctx, nil, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	q.log.Info().Str("job_id", job.ID).Str("url", url).Msg("job enqueued")
	q.publish(ctx, adapter.EventJobStarted, jobEvent{JobID: job.ID, URL: url, Status: job.Status})
	return job.ID, nil
}

// GetStatus returns the stored job, or domain.ErrNotFound.
func (q *JobQueue) GetStatus(ctx context.Context, jobID string) (*model.Job, error) {
	return q.jobs.FindByID(ctx, nil, jobID)
}

// MarkProcessing transitions a queued job to processing and records
// startedAt. Transitions are one-directional; terminal states never leave.
func (q *JobQueue) MarkProcessing(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := q.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobStatusProcessing {
		return job, nil // claimed by the dispatcher already
	}
	if job.Status != model.JobStatusQueued {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, domain.ErrInvalidArgument)
	}

	now := time.Now()
	status := model.JobStatusProcessing
	if err := q.jobs.Update(ctx, nil, jobID, repository.JobUpdate{
		Status:    &status,
		StartedAt: &now,
	}); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	job.Status = status
	job.StartedAt = &now
	return job, nil
}

// ReportProgress merges a progress snapshot into the job and announces
// job.progress. Counters stay monotonically non-decreasing.
func (q *JobQueue) ReportProgress(ctx context.Context, jobID string, snapshot model.JobProgress) error {
	job, err := q.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		// A deadline-abandoned pipeline can still report after the job was
		// finalized; terminal records stay frozen.
		q.log.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("dropping progress for terminal job")
		return nil
	}
	job.Progress.Merge(snapshot)
	if err := q.jobs.Update(ctx, nil, jobID, repository.JobUpdate{Progress: &job.Progress}); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	q.publish(ctx, adapter.EventJobProgress, jobEvent{JobID: jobID, Status: job.Status, Progress: &job.Progress})
	return nil
}

// Complete records the terminal result: merges accumulated progress, sets
// completedAt and, on failure, the semicolon-joined error message, then
// announces job.completed.
func (q *JobQueue) Complete(ctx context.Context, jobID string, success bool, snapshot model.JobProgress) error {
	job, err := q.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s already %s: %w", jobID, job.Status, domain.ErrInvalidArgument)
	}

	job.Progress.Merge(snapshot)
	now := time.Now()
	status := model.JobStatusCompleted
	upd := repository.JobUpdate{
		Status:      &status,
		Progress:    &job.Progress,
		CompletedAt: &now,
	}
	if !success {
		status = model.JobStatusFailed
		msg := strings.Join(job.Progress.Errors, "; ")
		upd.ErrorMessage = &msg
	}
	if err := q.jobs.Update(ctx, nil, jobID, upd); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	q.log.Info().
		Str("job_id", jobID).
		Str("status", string(status)).
		Int("chunks_embedded", job.Progress.ChunksEmbedded).
		Msg("job finished")
	q.publish(ctx, adapter.EventJobCompleted, jobEvent{JobID: jobID, Status: status, Progress: &job.Progress})
	return nil
}

// CancelJob marks a still-queued job failed. Processing jobs cannot be
// cancelled mid-flight.
func (q *JobQueue) CancelJob(ctx context.Context, jobID string) (bool, error) {
	job, err := q.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != model.JobStatusQueued {
		return false, domain.ErrJobNotCancellable
	}

	now := time.Now()
	status := model.JobStatusFailed
	msg := "cancelled by user"
	if err := q.jobs.Update(ctx, nil, jobID, repository.JobUpdate{
		Status:       &status,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	}); err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	q.publish(ctx, adapter.EventJobCompleted, jobEvent{JobID: jobID, Status: status})
	return true, nil
}

// RetryJob re-enqueues a failed job as a brand new job with the original URL
// and options, and returns the new job id.
func (q *JobQueue) RetryJob(ctx context.Context, jobID string) (string, error) {
	job, err := q.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != model.JobStatusFailed {
		return "", domain.ErrJobNotRetryable
	}
	newID, err := q.Enqueue(ctx, job.URL, job.Options)
	if err != nil {
		return "", err
	}
	q.log.Info().Str("job_id", jobID).Str("new_job_id", newID).Msg("failed job re-enqueued")
	return newID, nil
}

// CleanupOldJobs deletes terminal jobs created more than olderThanDays ago.
func (q *JobQueue) CleanupOldJobs(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	n, err := q.jobs.DeleteOlderThan(ctx, nil, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	if n > 0 {
		q.log.Info().Int("deleted", n).Int("older_than_days", olderThanDays).Msg("old jobs cleaned up")
	}
	return n, nil
}
