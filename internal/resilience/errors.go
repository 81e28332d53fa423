package resilience

import (
	"fmt"
	"time"
)

// Category identifies which part of the pipeline an error belongs to.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryScraping       Category = "scraping"
	CategoryEmbedding      Category = "embedding"
	CategoryStorage        Category = "storage"
	CategoryJob            Category = "job"
	CategoryNetwork        Category = "network"
	CategoryRateLimit      Category = "rate_limit"
	CategoryCircuitBreaker Category = "circuit_breaker"
)

// Severity grades an error's operational impact.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultRetryAfter is used for rate-limit errors whose underlying message
// carries no explicit delay.
const DefaultRetryAfter = 5000 * time.Millisecond

// ErrorContext is threaded through every guarded call so errors are traceable
// to the exact pipeline stage and attempt.
type ErrorContext struct {
	Component   string
	Operation   string
	JobID       string
	URL         string
	ChunkID     string
	BatchNumber int
	Attempt     int
	Timestamp   time.Time
	Metadata    map[string]string
}

// PipelineError is the typed error every raised failure is normalized to.
type PipelineError struct {
	Message    string
	Code       string
	Category   Category
	Severity   Severity
	Retryable  bool
	RetryAfter time.Duration // set for rate-limit errors only
	Context    *ErrorContext
	Cause      error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// WithContext returns the error with ctx attached when none is set yet.
func (e *PipelineError) WithContext(ctx *ErrorContext) *PipelineError {
	if e.Context == nil {
		e.Context = ctx
	}
	return e
}

// Validation errors are never retryable and always low severity:
// re-validating the same input cannot succeed.
func NewValidationError(msg string, ctx *ErrorContext) *PipelineError {
	return &PipelineError{
		Message: msg, Code: "VALIDATION_FAILED",
		Category: CategoryValidation, Severity: SeverityLow,
		Retryable: false, Context: ctx,
	}
}

func NewScrapingError(msg string, retryable bool, ctx *ErrorContext, cause error) *PipelineError {
	return &PipelineError{
		Message: msg, Code: "SCRAPING_FAILED",
		Category: CategoryScraping, Severity: SeverityMedium,
		Retryable: retryable, Context: ctx, Cause: cause,
	}
}

func NewEmbeddingError(msg string, retryable bool, ctx *ErrorContext, cause error) *PipelineError {
	return &PipelineError{
		Message: msg, Code: "EMBEDDING_FAILED",
		Category: CategoryEmbedding, Severity: SeverityMedium,
		Retryable: retryable, Context: ctx, Cause: cause,
	}
}

// Storage errors default to high severity.
func NewStorageError(msg string, retryable bool, ctx *ErrorContext, cause error) *PipelineError {
	return &PipelineError{
		Message: msg, Code: "STORAGE_FAILED",
		Category: CategoryStorage, Severity: SeverityHigh,
		Retryable: retryable, Context: ctx, Cause: cause,
	}
}

func NewJobError(msg string, ctx *ErrorContext, cause error) *PipelineError {
	return &PipelineError{
		Message: msg, Code: "JOB_FAILED",
		Category: CategoryJob, Severity: SeverityMedium,
		Retryable: false, Context: ctx, Cause: cause,
	}
}

func NewNetworkError(msg string, ctx *ErrorContext, cause error) *PipelineError {
	return &PipelineError{
		Message: msg, Code: "NETWORK_ERROR",
		Category: CategoryNetwork, Severity: SeverityMedium,
		Retryable: true, Context: ctx, Cause: cause,
	}
}

// Rate-limit errors are always retryable and always carry a retry-after hint.
func NewRateLimitError(msg string, retryAfter time.Duration, ctx *ErrorContext, cause error) *PipelineError {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &PipelineError{
		Message: msg, Code: "RATE_LIMITED",
		Category: CategoryRateLimit, Severity: SeverityMedium,
		Retryable: true, RetryAfter: retryAfter, Context: ctx, Cause: cause,
	}
}

// Circuit-breaker-open errors are explicitly non-retryable: retrying
// immediately would defeat the breaker's purpose.
func NewCircuitBreakerError(component string, ctx *ErrorContext) *PipelineError {
	return &PipelineError{
		Message:  fmt.Sprintf("circuit breaker open for component %q", component),
		Code:     "CIRCUIT_OPEN",
		Category: CategoryCircuitBreaker, Severity: SeverityHigh,
		Retryable: false, Context: ctx,
	}
}
