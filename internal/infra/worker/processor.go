package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docs-ingestion-service/internal/chunker"
	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/infra/logging"
	"docs-ingestion-service/internal/memctrl"
	"docs-ingestion-service/internal/resilience"
	"docs-ingestion-service/internal/usecase"
)

// Processor drives one job through validate -> fetch -> chunk -> embed ->
// index. Every collaborator call is guarded by the resilience engine; the
// embed stage is paced by the memory controller. Stages within one job are
// strictly sequential.
type Processor struct {
	queue     *usecase.JobQueue
	validator adapter.URLValidator
	fetcher   adapter.PageFetcher
	embedder  adapter.Embedder
	index     adapter.VectorIndex
	engine    *resilience.Engine
	mem       *memctrl.Controller
	chunks    *chunker.Chunker
	metrics   adapter.MetricsSink

	jobTimeout   time.Duration
	fetchTimeout time.Duration
	batchPacing  time.Duration

	log zerolog.Logger
}

// ProcessorConfig carries the orchestrator's timing knobs.
type ProcessorConfig struct {
	JobTimeout   time.Duration
	FetchTimeout time.Duration
	BatchPacing  time.Duration
}

func NewProcessor(
	queue *usecase.JobQueue,
	validator adapter.URLValidator,
	fetcher adapter.PageFetcher,
	embedder adapter.Embedder,
	index adapter.VectorIndex,
	engine *resilience.Engine,
	mem *memctrl.Controller,
	chk *chunker.Chunker,
	metrics adapter.MetricsSink,
	cfg ProcessorConfig,
	logger *zerolog.Logger,
) *Processor {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Processor{
		queue:        queue,
		validator:    validator,
		fetcher:      fetcher,
		embedder:     embedder,
		index:        index,
		engine:       engine,
		mem:          mem,
		chunks:       chk,
		metrics:      metrics,
		jobTimeout:   cfg.JobTimeout,
		fetchTimeout: cfg.FetchTimeout,
		batchPacing:  cfg.BatchPacing,
		log:          logger.With().Str("component", "Processor").Logger(),
	}
}

// pipelineOutcome is what one pipeline run reports back to ProcessJob.
type pipelineOutcome struct {
	success     bool
	totalChunks int
	progress    model.JobProgress
}

// ProcessJob runs the full pipeline for jobID and never returns an error:
// every failure, including bookkeeping failures at completion, is folded
// into a failed JobResult.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) model.JobResult {
	start := time.Now()
	result := model.JobResult{JobID: jobID}

	ctx = logging.WithJobID(ctx, jobID)
	jlog := logging.With(ctx, &p.log)
	defer logging.TraceDuration(jlog, "Processor.ProcessJob")()

	job, err := p.queue.MarkProcessing(ctx, jobID)
	if err != nil {
		perr := resilience.NewJobError(fmt.Sprintf("job %s could not be loaded: %v", jobID, err), nil, err)
		jlog.Error().Err(perr).Msg("job load failed")
		result.Errors = []string{perr.Message}
		result.ProcessingTime = time.Since(start)
		return result
	}

	ctx = logging.WithURL(ctx, job.URL)
	jlog = logging.With(ctx, &p.log)
	jlog.Info().Msg("processing job")

	// Race the pipeline against the overall deadline. Firing the deadline
	// stops us waiting; in-flight stage work is not forcibly cancelled and a
	// late outcome is discarded.
	outcomeCh := make(chan pipelineOutcome, 1)
	go func() {
		outcomeCh <- p.runPipeline(ctx, job)
	}()

	var outcome pipelineOutcome
	timer := time.NewTimer(p.jobTimeout)
	defer timer.Stop()
	select {
	case outcome = <-outcomeCh:
	case <-timer.C:
		elapsed := time.Since(start)
		msg := fmt.Sprintf("pipeline timed out after %s", elapsed.Round(time.Millisecond))
		jlog.Error().Dur("elapsed", elapsed).Msg("job deadline fired")
		outcome = pipelineOutcome{
			success:  false,
			progress: model.JobProgress{Errors: []string{msg}},
		}
	case <-ctx.Done():
		outcome = pipelineOutcome{
			success:  false,
			progress: model.JobProgress{Errors: []string{fmt.Sprintf("job aborted: %v", ctx.Err())}},
		}
	}

	// Terminal bookkeeping uses a background context so a fired deadline
	// cannot lose the final state, mirroring the final status write pattern.
	if err := p.queue.Complete(context.Background(), jobID, outcome.success, outcome.progress); err != nil {
		jlog.Error().Err(err).Msg("completion bookkeeping failed")
		outcome.success = false
		outcome.progress.Errors = append(outcome.progress.Errors, fmt.Sprintf("completion failed: %v", err))
	}

	result.Success = outcome.success
	result.TotalChunks = outcome.totalChunks
	result.Errors = outcome.progress.Errors
	result.ProcessingTime = time.Since(start)

	p.recordJobMetrics(result)
	return result
}

func (p *Processor) runPipeline(ctx context.Context, job *model.Job) pipelineOutcome {
	var progress model.JobProgress
	fail := func(msg string) pipelineOutcome {
		progress.Errors = append(progress.Errors, msg)
		return pipelineOutcome{success: false, progress: progress}
	}

	// Stage 1: validate. Failure is non-retryable and short-circuits the
	// whole job with zero chunks.
	url, err := p.validateStage(ctx, job)
	if err != nil {
		return fail(stageMessage(err))
	}

	// Stage 2: fetch.
	page, err := p.fetchStage(ctx, job, url)
	if err != nil {
		return fail(stageMessage(err))
	}
	progress.PagesProcessed++
	p.reportProgress(ctx, job.ID, progress)

	// Stage 3: chunk (pure, in-process).
	stageStart := time.Now()
	chunks := p.chunks.Chunk(page.Content, chunker.PageMeta{SourceURL: url, Title: page.Title})
	p.recordStage("chunk", stageStart, true)
	progress.ChunksCreated = len(chunks)
	p.metrics.Record("chunks", float64(len(chunks)), "count", map[string]string{"stage": "created"})
	p.reportProgress(ctx, job.ID, progress)

	if len(chunks) == 0 {
		logging.With(ctx, &p.log).Info().Msg("page produced no chunks")
		return pipelineOutcome{success: true, progress: progress}
	}

	// Stage 4: embed, behind graceful degradation with a halved batch size
	// fallback that tolerates partial success.
	embedded, embedErrs, err := p.embedStage(ctx, job, chunks)
	progress.Errors = append(progress.Errors, embedErrs...)
	if err != nil {
		return fail(stageMessage(err))
	}
	if len(embedded) == 0 {
		perr := resilience.NewEmbeddingError("no chunks could be embedded", false, nil, nil)
		return fail(perr.Message)
	}
	progress.ChunksEmbedded = len(embedded)
	p.metrics.Record("chunks", float64(len(embedded)), "count", map[string]string{"stage": "embedded"})
	p.reportProgress(ctx, job.ID, progress)

	// Stage 5: index. Per-item failures are recorded but only a batch with
	// nothing durably stored fails the job.
	stored, indexErrs, err := p.indexStage(ctx, job, embedded)
	progress.Errors = append(progress.Errors, indexErrs...)
	if err != nil {
		return fail(stageMessage(err))
	}
	p.metrics.Record("chunks", float64(stored), "count", map[string]string{"stage": "stored"})

	return pipelineOutcome{success: true, totalChunks: stored, progress: progress}
}

func (p *Processor) validateStage(ctx context.Context, job *model.Job) (string, error) {
	stageStart := time.Now()
	res, err := resilience.Execute(ctx, p.engine, resilience.ErrorContext{
		Component: "validator", Operation: "validate", JobID: job.ID, URL: job.URL,
	}, func(context.Context) (adapter.ValidationResult, error) {
		r := p.validator.Validate(job.URL)
		if !r.IsValid {
			return r, resilience.NewValidationError(
				"URL validation failed: "+strings.Join(r.Errors, ", "), nil)
		}
		return r, nil
	})
	p.recordStage("validate", stageStart, err == nil)
	if err != nil {
		return "", err
	}
	if res.SanitizedURL != "" {
		return res.SanitizedURL, nil
	}
	return job.URL, nil
}

func (p *Processor) fetchStage(ctx context.Context, job *model.Job, url string) (*model.FetchedPage, error) {
	stageStart := time.Now()
	page, err := resilience.Execute(ctx, p.engine, resilience.ErrorContext{
		Component: "fetcher", Operation: "fetch", JobID: job.ID, URL: url,
	}, func(ctx context.Context) (*model.FetchedPage, error) {
		return p.fetcher.Fetch(ctx, url, adapter.FetchOptions{
			Timeout:       p.fetchTimeout,
			RespectRobots: job.Options.RespectRobots,
		})
	})
	p.recordStage("fetch", stageStart, err == nil)
	return page, err
}

// embedStage returns the embedded chunks, any per-batch error strings from
// the degraded path, and a terminal error when both paths collapse.
func (p *Processor) embedStage(ctx context.Context, job *model.Job, chunks []model.DocumentChunk) ([]model.EmbeddedChunk, []string, error) {
	stageStart := time.Now()
	var batchErrs []string

	embedded, err := resilience.WithFallback(ctx, p.engine, resilience.ErrorContext{
		Component: "embedder", Operation: "embed", JobID: job.ID,
	}, resilience.FuncStrategy[[]model.EmbeddedChunk]{
		Run: func(ctx context.Context) ([]model.EmbeddedChunk, error) {
			return p.embedBatches(ctx, job.ID, chunks, false, nil)
		},
		Fall: func(ctx context.Context) ([]model.EmbeddedChunk, error) {
			// Halve the batch size and keep going past failed batches.
			out, err := p.embedBatches(ctx, job.ID, chunks, true, &batchErrs)
			if err != nil {
				return nil, err
			}
			if len(out) == 0 {
				return nil, resilience.NewEmbeddingError("fallback embedded zero chunks", false, nil, nil)
			}
			return out, nil
		},
	})
	p.recordStage("embed", stageStart, err == nil)
	if err == nil && len(embedded) > 0 {
		if secs := time.Since(stageStart).Seconds(); secs > 0 {
			p.metrics.RecordProcessingSpeed("embed", float64(len(embedded))/secs)
		}
	}
	return embedded, batchErrs, err
}

// embedBatches walks the chunks one batch at a time under the memory
// controller, so each reading reflects the previous batch. When tolerate is
// non-nil, a failed batch is recorded there and skipped instead of aborting.
func (p *Processor) embedBatches(ctx context.Context, jobID string, chunks []model.DocumentChunk, halve bool, tolerate *[]string) ([]model.EmbeddedChunk, error) {
	var out []model.EmbeddedChunk
	offset := 0
	batchNum := 0

	err := p.mem.RunAdaptive(ctx, "embed", func(ctx context.Context, b memctrl.Batch) (bool, error) {
		size := b.Size
		if halve {
			if size = size / 2; size < 1 {
				size = 1
			}
		}
		p.metrics.Record("batch_size", float64(size), "count", map[string]string{"stage": "embed"})
		end := offset + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]
		batchNum++

		embedded, err := resilience.Execute(ctx, p.engine, resilience.ErrorContext{
			Component: "embedder", Operation: "embed_batch",
			JobID: jobID, BatchNumber: batchNum,
		}, func(ctx context.Context) ([]model.EmbeddedChunk, error) {
			return p.embedder.Embed(ctx, batch)
		})
		if err != nil {
			if tolerate == nil {
				return false, err
			}
			*tolerate = append(*tolerate, stageMessage(err))
		} else {
			if verr := p.checkDimensions(embedded); verr != nil {
				if tolerate == nil {
					return false, verr
				}
				*tolerate = append(*tolerate, stageMessage(verr))
			} else {
				out = append(out, embedded...)
			}
		}

		offset = end
		if offset >= len(chunks) {
			return true, nil
		}

		// One batch at a time with a pacing delay, doubled under pressure.
		if p.batchPacing > 0 {
			pacing := p.batchPacing
			if b.Memory.Level != memctrl.LevelNormal {
				pacing *= 2
			}
			timer := time.NewTimer(pacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, ctx.Err()
			case <-timer.C:
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// checkDimensions is the hard precondition before storage: every vector must
// match the embedder's configured dimensionality.
func (p *Processor) checkDimensions(embedded []model.EmbeddedChunk) error {
	want := p.embedder.Dimensions()
	for _, e := range embedded {
		if len(e.Vector) != want {
			return resilience.NewEmbeddingError(
				fmt.Sprintf("vector dimension mismatch for chunk %s: got %d, want %d", e.ID, len(e.Vector), want),
				false, nil, nil)
		}
	}
	return nil
}

func (p *Processor) indexStage(ctx context.Context, job *model.Job, embedded []model.EmbeddedChunk) (int, []string, error) {
	stageStart := time.Now()
	res, err := resilience.Execute(ctx, p.engine, resilience.ErrorContext{
		Component: "index", Operation: "store_batch", JobID: job.ID,
	}, func(ctx context.Context) (adapter.StoreResult, error) {
		return p.index.StoreBatch(ctx, embedded)
	})
	p.recordStage("index", stageStart, err == nil)
	if err != nil {
		return 0, nil, err
	}

	durable := res.Stored + res.Updated
	if durable == 0 && res.Failed > 0 {
		perr := resilience.NewStorageError(
			fmt.Sprintf("index stored none of %d chunks", len(embedded)), true, nil, nil)
		return 0, res.Errors, perr
	}
	return durable, res.Errors, nil
}

// reportProgress is best-effort; a failed progress write never fails a stage.
func (p *Processor) reportProgress(ctx context.Context, jobID string, progress model.JobProgress) {
	if err := p.queue.ReportProgress(ctx, jobID, progress); err != nil {
		logging.With(ctx, &p.log).Warn().Err(err).Msg("progress update failed")
	}
}

func (p *Processor) recordStage(stage string, start time.Time, success bool) {
	p.metrics.Record("pipeline_stage_latency", float64(time.Since(start).Milliseconds()), "ms",
		map[string]string{"stage": stage, "success": fmt.Sprintf("%t", success)})
}

func (p *Processor) recordJobMetrics(res model.JobResult) {
	status := "completed"
	if !res.Success {
		status = "failed"
	}
	p.metrics.Record("jobs_processed", 1, "count", map[string]string{"status": status})
	p.metrics.Record("job_duration", float64(res.ProcessingTime.Milliseconds()), "ms",
		map[string]string{"status": status})
}

// stageMessage extracts the taxonomy message for user-facing error lists.
func stageMessage(err error) string {
	var perr *resilience.PipelineError
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}
