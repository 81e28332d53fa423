package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docs-ingestion-service/internal/chunker"
	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/memctrl"
	"docs-ingestion-service/internal/resilience"
	"docs-ingestion-service/internal/usecase"
)

const docText = `# Introduction
This is comprehensive API documentation for the example service.

# Authentication
Requests carry a bearer token in the Authorization header.

# Usage
Send JSON bodies and expect JSON responses back.`

type harness struct {
	repo      *memJobRepo
	queue     *usecase.JobQueue
	validator *fakeValidator
	fetcher   *fakeFetcher
	embedder  *fakeEmbedder
	index     *fakeIndex
	metrics   *recordingMetrics
	processor *Processor
}

func newHarness(t *testing.T, cfg ProcessorConfig) *harness {
	t.Helper()
	nop := zerolog.Nop()

	repo := newMemJobRepo()
	queue := usecase.NewJobQueue(repo, nopBus{}, &nop)

	engine := resilience.NewEngine(resilience.RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, resilience.NewBreakerRegistry(50, time.Minute), &nop)

	mem := memctrl.NewController(memctrl.Config{
		MaxHeapBytes:     1 << 40, // effectively always normal
		DefaultBatchSize: 8,
	}, nil, &nop)

	h := &harness{
		repo:      repo,
		queue:     queue,
		validator: &fakeValidator{},
		fetcher:   &fakeFetcher{page: &model.FetchedPage{URL: "u", Title: "Docs", Content: docText}},
		embedder:  &fakeEmbedder{dims: 3},
		index:     &fakeIndex{useAll: true},
		metrics:   &recordingMetrics{},
	}
	h.processor = NewProcessor(queue, h.validator, h.fetcher, h.embedder, h.index,
		engine, mem, chunker.New(chunker.Config{MaxTokens: 200}), h.metrics, cfg, &nop)
	return h
}

func (h *harness) enqueue(t *testing.T) string {
	t.Helper()
	id, err := h.queue.Enqueue(context.Background(), "https://api.example.com/docs", model.JobOptions{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return id
}

func TestProcessJobHappyPath(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	id := h.enqueue(t)

	res := h.processor.ProcessJob(context.Background(), id)

	if !res.Success {
		t.Fatalf("expected success, got errors %v", res.Errors)
	}
	if res.TotalChunks != 3 {
		t.Fatalf("totalChunks = %d, want 3 (one per section)", res.TotalChunks)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", res.Errors)
	}

	job, err := h.queue.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Fatal("startedAt/completedAt must be recorded")
	}
	if job.Progress.PagesProcessed != 1 || job.Progress.ChunksCreated != 3 || job.Progress.ChunksEmbedded != 3 {
		t.Fatalf("unexpected progress: %+v", job.Progress)
	}
}

func TestProcessJobRecordsChunkMetrics(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	id := h.enqueue(t)

	res := h.processor.ProcessJob(context.Background(), id)
	if !res.Success {
		t.Fatalf("expected success, got errors %v", res.Errors)
	}

	for _, stage := range []string{"created", "embedded", "stored"} {
		got, ok := h.metrics.lastValue("chunks", "stage", stage)
		if !ok {
			t.Fatalf("no chunks measurement for stage %q", stage)
		}
		if got != 3 {
			t.Errorf("chunks[%s] = %v, want 3", stage, got)
		}
	}

	if got, ok := h.metrics.lastValue("batch_size", "stage", "embed"); !ok {
		t.Fatal("no batch_size measurement for the embed stage")
	} else if got != 8 {
		t.Errorf("batch_size = %v, want the configured default of 8", got)
	}
}

func TestProcessJobRetriesTransientFetchFailure(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	h.fetcher.failures = 1
	h.fetcher.failWith = errors.New("connection reset by peer")
	id := h.enqueue(t)

	res := h.processor.ProcessJob(context.Background(), id)

	if !res.Success {
		t.Fatalf("job should succeed after fetch retry, errors: %v", res.Errors)
	}
	if got := h.fetcher.callCount(); got != 2 {
		t.Fatalf("fetch collaborator invoked %d times, want exactly 2", got)
	}
}

func TestProcessJobValidationFailureShortCircuits(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	h.validator.errs = []string{"Invalid URL format"}
	id := h.enqueue(t)

	res := h.processor.ProcessJob(context.Background(), id)

	if res.Success || res.TotalChunks != 0 {
		t.Fatalf("expected failed result with zero chunks, got %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0] != "URL validation failed: Invalid URL format" {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if h.fetcher.callCount() != 0 {
		t.Fatal("fetch collaborator must never be invoked after validation failure")
	}

	job, _ := h.queue.GetStatus(context.Background(), id)
	if job.Status != model.JobStatusFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "URL validation failed") {
		t.Fatalf("errorMessage = %q", job.ErrorMessage)
	}
}

func TestProcessJobMissingJob(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})

	res := h.processor.ProcessJob(context.Background(), "no-such-job")

	if res.Success || res.TotalChunks != 0 || len(res.Errors) == 0 {
		t.Fatalf("missing job must fail with zero chunks: %+v", res)
	}
}

func TestProcessJobEmbedFallbackRecovers(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	// Primary path exhausts its retries, halved-batch fallback succeeds.
	h.embedder.failures = 3
	h.embedder.failWith = errors.New("embedding backend unavailable")
	id := h.enqueue(t)

	res := h.processor.ProcessJob(context.Background(), id)

	if !res.Success {
		t.Fatalf("fallback should rescue the embed stage, errors: %v", res.Errors)
	}
	if res.TotalChunks != 3 {
		t.Fatalf("totalChunks = %d, want 3", res.TotalChunks)
	}
	if h.embedder.callCount() <= 3 {
		t.Fatalf("expected fallback attempts beyond the primary's %d calls, got %d", 3, h.embedder.callCount())
	}
}

func TestProcessJobFailsWhenNothingEmbeds(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	h.embedder.failures = 1 << 30 // never succeeds
	h.embedder.failWith = errors.New("embedding backend unavailable")
	id := h.enqueue(t)

	res := h.processor.ProcessJob(context.Background(), id)

	if res.Success {
		t.Fatal("job must fail when primary and fallback both collapse")
	}
	if h.index.callCount() != 0 {
		t.Fatal("index stage must not run when zero chunks embedded")
	}
}

func TestProcessJobRejectsDimensionMismatch(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	h.embedder.badDims = true
	id := h.enqueue(t)

	res := h.processor.ProcessJob(context.Background(), id)

	if res.Success {
		t.Fatal("dimension mismatch must fail the embed stage")
	}
	if h.index.callCount() != 0 {
		t.Fatal("mismatched vectors must never reach storage")
	}
}

func TestProcessJobIndexPartialFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	h.index.useAll = false
	h.index.result = adapter.StoreResult{Stored: 2, Failed: 1, Errors: []string{"chunk 2 rejected"}}
	id := h.enqueue(t)

	res := h.processor.ProcessJob(context.Background(), id)

	if !res.Success {
		t.Fatalf("partial index failure must not fail the job: %v", res.Errors)
	}
	if res.TotalChunks != 2 {
		t.Fatalf("totalChunks must count durably stored chunks only, got %d", res.TotalChunks)
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "chunk 2 rejected") {
			found = true
		}
	}
	if !found {
		t.Fatalf("per-item index errors must be recorded: %v", res.Errors)
	}
}

func TestProcessJobIndexTotalFailureFails(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	h.index.useAll = false
	h.index.result = adapter.StoreResult{Failed: 3, Errors: []string{"index write refused"}}
	id := h.enqueue(t)

	res := h.processor.ProcessJob(context.Background(), id)

	if res.Success || res.TotalChunks != 0 {
		t.Fatalf("job must fail when nothing was stored: %+v", res)
	}
}

func TestProcessJobDeadline(t *testing.T) {
	h := newHarness(t, ProcessorConfig{JobTimeout: 50 * time.Millisecond})
	h.fetcher.delay = 300 * time.Millisecond
	id := h.enqueue(t)

	start := time.Now()
	res := h.processor.ProcessJob(context.Background(), id)

	if res.Success {
		t.Fatal("job must fail when the deadline fires")
	}
	if time.Since(start) > 250*time.Millisecond {
		t.Fatal("orchestrator must stop waiting once the deadline fires")
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "timed out") {
			found = true
		}
	}
	if !found {
		t.Fatalf("timeout must be reported with elapsed time: %v", res.Errors)
	}

	job, _ := h.queue.GetStatus(context.Background(), id)
	if job.Status != model.JobStatusFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
}
