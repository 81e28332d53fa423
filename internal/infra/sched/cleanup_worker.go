package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"docs-ingestion-service/internal/infra/metrics"
	"docs-ingestion-service/internal/usecase"
)

// CleanupWorker periodically deletes old terminal jobs via the job queue.
type CleanupWorker struct {
	interval      time.Duration
	olderThanDays int
	queue         *usecase.JobQueue
	log           *zerolog.Logger
}

func NewCleanupWorker(interval time.Duration, olderThanDays int, queue *usecase.JobQueue, logger *zerolog.Logger) *CleanupWorker {
	cleanupLog := logger.With().Str("component", "CleanupWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	if olderThanDays <= 0 {
		olderThanDays = 30
	}
	return &CleanupWorker{
		interval:      interval,
		olderThanDays: olderThanDays,
		queue:         queue,
		log:           &cleanupLog,
	}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Int("older_than_days", w.olderThanDays).Msg("Starting cleanup worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.queue.CleanupOldJobs(ctx, w.olderThanDays)
			if err != nil {
				w.log.Error().Err(err).Msg("cleanup worker error")
			}
			if n > 0 {
				metrics.IncJobsCleaned(n)
				w.log.Info().Int("count", n).Msg("old jobs deleted")
			}
		}
	}
}
