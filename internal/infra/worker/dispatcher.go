package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"docs-ingestion-service/internal/domain"
	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/repository"
)

// Dispatcher polls for queued jobs and hands them to the pool. Claiming is
// atomic at the store (FOR UPDATE SKIP LOCKED), so several service instances
// can poll the same queue safely.
type Dispatcher struct {
	jobs      repository.JobRepository
	processor *Processor
	interval  time.Duration
	log       zerolog.Logger
}

func NewDispatcher(jobs repository.JobRepository, processor *Processor, interval time.Duration, logger *zerolog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Dispatcher{
		jobs:      jobs,
		processor: processor,
		interval:  interval,
		log:       logger.With().Str("component", "Dispatcher").Logger(),
	}
}

// Start runs the polling loop until ctx is cancelled.
// This should be run in a goroutine.
func (d *Dispatcher) Start(ctx context.Context, pool *Pool) {
	d.log.Info().Dur("interval", d.interval).Msg("dispatcher started")
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher stopping")
			return
		case <-ticker.C:
			d.dispatchOne(ctx, pool)
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, pool *Pool) {
	job, err := d.jobs.FetchAndMarkProcessing(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			d.log.Error().Err(err).Msg("failed to claim job")
		}
		return
	}

	jobID := job.ID
	if err := pool.Submit(func(ctx context.Context) error {
		d.processor.ProcessJob(ctx, jobID)
		return nil
	}); err != nil {
		// The claim already flipped the job to processing; put it back so the
		// next poll can pick it up instead of stranding it.
		d.log.Warn().Err(err).Str("job_id", jobID).Msg("pool saturated, requeueing job")
		queued := model.JobStatusQueued
		if uerr := d.jobs.Update(ctx, nil, jobID, repository.JobUpdate{Status: &queued}); uerr != nil {
			d.log.Error().Err(uerr).Str("job_id", jobID).Msg("failed to requeue job")
		}
	}
}
