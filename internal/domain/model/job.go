package model

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobOptions are caller-supplied crawl settings, persisted verbatim with the job.
type JobOptions struct {
	MaxDepth      int  `json:"maxDepth"`
	FollowLinks   bool `json:"followLinks"`
	RespectRobots bool `json:"respectRobots"`
}

// JobProgress accumulates per-stage counters and every error string seen
// across all attempts. Counters never decrease for a given job.
type JobProgress struct {
	PagesProcessed int      `json:"pagesProcessed"`
	ChunksCreated  int      `json:"chunksCreated"`
	ChunksEmbedded int      `json:"chunksEmbedded"`
	Errors         []string `json:"errors"`
}

// Merge folds another progress snapshot into this one. Counters are kept
// monotonically non-decreasing and error strings are appended in order.
func (p *JobProgress) Merge(other JobProgress) {
	if other.PagesProcessed > p.PagesProcessed {
		p.PagesProcessed = other.PagesProcessed
	}
	if other.ChunksCreated > p.ChunksCreated {
		p.ChunksCreated = other.ChunksCreated
	}
	if other.ChunksEmbedded > p.ChunksEmbedded {
		p.ChunksEmbedded = other.ChunksEmbedded
	}
	p.Errors = append(p.Errors, other.Errors...)
}

// Job is one URL-ingestion request and its lifecycle state.
// Owned exclusively by the job queue; mutated only through queue methods.
type Job struct {
	ID           string
	URL          string
	Options      JobOptions
	Status       JobStatus
	Progress     JobProgress
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

func NewJob(id, url string, opts JobOptions) *Job {
	return &Job{
		ID:        id,
		URL:       url,
		Options:   opts,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
}

// JobResult is the outcome of running one job through the pipeline.
type JobResult struct {
	JobID          string        `json:"jobId"`
	Success        bool          `json:"success"`
	TotalChunks    int           `json:"totalChunks"`
	Errors         []string      `json:"errors"`
	ProcessingTime time.Duration `json:"processingTime"`
}
