package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docs-ingestion-service/internal/domain"
	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/domain/ports/repository"
)

// ---- in-memory job repo ----

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.Job)}
}

func (r *memJobRepo) Create(_ context.Context, _ repository.Tx, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	cp.Progress.Errors = append([]string(nil), job.Progress.Errors...)
	return &cp, nil
}

func (r *memJobRepo) Update(_ context.Context, _ repository.Tx, id string, upd repository.JobUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.Progress != nil {
		cp := *upd.Progress
		cp.Errors = append([]string(nil), upd.Progress.Errors...)
		job.Progress = cp
	}
	if upd.ErrorMessage != nil {
		job.ErrorMessage = *upd.ErrorMessage
	}
	if upd.StartedAt != nil {
		job.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		job.CompletedAt = upd.CompletedAt
	}
	return nil
}

func (r *memJobRepo) FetchAndMarkProcessing(_ context.Context) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var queued []*model.Job
	for _, j := range r.jobs {
		if j.Status == model.JobStatusQueued {
			queued = append(queued, j)
		}
	}
	if len(queued) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(queued, func(i, k int) bool { return queued[i].CreatedAt.Before(queued[k].CreatedAt) })
	job := queued[0]
	job.Status = model.JobStatusProcessing
	cp := *job
	return &cp, nil
}

func (r *memJobRepo) DeleteOlderThan(_ context.Context, _ repository.Tx, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.Status.IsTerminal() && j.CreatedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

// ---- collaborator fakes ----

type fakeValidator struct {
	errs      []string
	sanitized string
	calls     int
}

func (v *fakeValidator) Validate(url string) adapter.ValidationResult {
	v.calls++
	if len(v.errs) > 0 {
		return adapter.ValidationResult{IsValid: false, Errors: v.errs}
	}
	out := v.sanitized
	if out == "" {
		out = url
	}
	return adapter.ValidationResult{IsValid: true, SanitizedURL: out}
}

type fakeFetcher struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many leading calls
	failWith error
	page     *model.FetchedPage
	delay    time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, _ adapter.FetchOptions) (*model.FetchedPage, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= f.failures {
		return nil, f.failWith
	}
	page := f.page
	if page == nil {
		page = &model.FetchedPage{URL: url, Title: "Docs", Content: "Example content."}
	}
	return page, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many leading calls
	failWith error
	dims     int
	badDims  bool
}

func (e *fakeEmbedder) Embed(_ context.Context, chunks []model.DocumentChunk) ([]model.EmbeddedChunk, error) {
	e.mu.Lock()
	e.calls++
	n := e.calls
	e.mu.Unlock()
	if n <= e.failures {
		err := e.failWith
		if err == nil {
			err = fmt.Errorf("embedding backend unavailable")
		}
		return nil, err
	}
	dims := e.dims
	if e.badDims {
		dims++
	}
	out := make([]model.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = model.EmbeddedChunk{
			DocumentChunk: c,
			Vector:        make([]float32, dims),
			EmbeddedAt:    time.Now(),
		}
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return e.dims }

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeIndex struct {
	mu     sync.Mutex
	calls  int
	result adapter.StoreResult
	err    error
	useAll bool // report everything stored
}

func (ix *fakeIndex) StoreBatch(_ context.Context, chunks []model.EmbeddedChunk) (adapter.StoreResult, error) {
	ix.mu.Lock()
	ix.calls++
	ix.mu.Unlock()
	if ix.err != nil {
		return adapter.StoreResult{}, ix.err
	}
	if ix.useAll {
		return adapter.StoreResult{Stored: len(chunks)}, nil
	}
	return ix.result, nil
}

func (ix *fakeIndex) callCount() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.calls
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, any) error { return nil }

type metricRecord struct {
	name  string
	value float64
	tags  map[string]string
}

type recordingMetrics struct {
	mu      sync.Mutex
	records []metricRecord
}

func (m *recordingMetrics) Record(name string, value float64, _ string, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, metricRecord{name: name, value: value, tags: tags})
}

func (m *recordingMetrics) RecordAPICall(string, string, int, bool) {}

func (m *recordingMetrics) RecordProcessingSpeed(string, float64) {}

// lastValue returns the most recent record matching name and tag, if any.
func (m *recordingMetrics) lastValue(name, tagKey, tagVal string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.name == name && r.tags[tagKey] == tagVal {
			return r.value, true
		}
	}
	return 0, false
}
