package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docs-ingestion-service/internal/domain"
	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/resilience"
)

// JobService is the slice of the job queue the HTTP layer needs.
type JobService interface {
	Enqueue(ctx context.Context, url string, opts model.JobOptions) (string, error)
	GetStatus(ctx context.Context, jobID string) (*model.Job, error)
	CancelJob(ctx context.Context, jobID string) (bool, error)
	RetryJob(ctx context.Context, jobID string) (string, error)
}

type enqueueRequest struct {
	URL     string `json:"url"`
	Options struct {
		MaxDepth      int  `json:"maxDepth"`
		FollowLinks   bool `json:"followLinks"`
		RespectRobots bool `json:"respectRobots"`
	} `json:"options"`
}

type jobResponse struct {
	JobID        string            `json:"jobId"`
	URL          string            `json:"url"`
	Status       model.JobStatus   `json:"status"`
	Options      model.JobOptions  `json:"options"`
	Progress     model.JobProgress `json:"progress"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	LastError    *errorBody        `json:"lastError,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

type errorBody struct {
	Message      string              `json:"message"`
	Code         string              `json:"code"`
	Category     resilience.Category `json:"category"`
	CanRetry     bool                `json:"canRetry"`
	RetryAfterMs int64               `json:"retryAfterMs,omitempty"`
	Remediation  string              `json:"remediation,omitempty"`
}

func renderError(err error) *errorBody {
	resp := resilience.Respond(err, nil)
	return &errorBody{
		Message:      resp.UserMessage,
		Code:         resp.Code,
		Category:     resp.Category,
		CanRetry:     resp.CanRetry,
		RetryAfterMs: resp.RetryAfterMs,
		Remediation:  resp.Remediation,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Handler for submitting a new ingestion job.
func enqueueHandler(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		opts := model.JobOptions{
			MaxDepth:      req.Options.MaxDepth,
			FollowLinks:   req.Options.FollowLinks,
			RespectRobots: req.Options.RespectRobots,
		}
		id, err := jobs.Enqueue(ctx, req.URL, opts)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				http.Error(w, "URL is required", http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to enqueue job", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, struct {
			JobID  string          `json:"jobId"`
			Status model.JobStatus `json:"status"`
		}{JobID: id, Status: model.JobStatusQueued})
	}
}

// Handler for reading a job's status and progress.
func statusHandler(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id := chi.URLParam(r, "id")
		job, err := jobs.GetStatus(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to get job", http.StatusInternalServerError)
			return
		}

		resp := jobResponse{
			JobID:        job.ID,
			URL:          job.URL,
			Status:       job.Status,
			Options:      job.Options,
			Progress:     job.Progress,
			ErrorMessage: job.ErrorMessage,
			CreatedAt:    job.CreatedAt,
			StartedAt:    job.StartedAt,
			CompletedAt:  job.CompletedAt,
		}
		if job.Status == model.JobStatusFailed && job.ErrorMessage != "" {
			resp.LastError = renderError(errors.New(job.ErrorMessage))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Handler for cancelling a queued job.
func cancelHandler(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id := chi.URLParam(r, "id")
		_, err := jobs.CancelJob(ctx, id)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.NotFound(w, r)
			case errors.Is(err, domain.ErrJobNotCancellable):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, "Failed to cancel job", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, struct {
			JobID     string `json:"jobId"`
			Cancelled bool   `json:"cancelled"`
		}{JobID: id, Cancelled: true})
	}
}

// Handler for retrying a failed job. The retry is a fresh job with the same
// URL and options, so the response carries the new job id.
func retryHandler(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id := chi.URLParam(r, "id")
		newID, err := jobs.RetryJob(ctx, id)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.NotFound(w, r)
			case errors.Is(err, domain.ErrJobNotRetryable):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, "Failed to retry job", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusAccepted, struct {
			JobID     string          `json:"jobId"`
			RetriedAs string          `json:"retriedAs"`
			Status    model.JobStatus `json:"status"`
		}{JobID: id, RetriedAs: newID, Status: model.JobStatusQueued})
	}
}

// Pinger is anything whose liveness the health endpoint reports on.
// *pgxpool.Pool and the redis client both satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		overall := "ok"
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				overall = "degraded"
				continue
			}
			checks[name] = "ok"
		}

		writeJSON(w, status, struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks,omitempty"`
		}{Status: overall, Checks: checks})
	}
}
