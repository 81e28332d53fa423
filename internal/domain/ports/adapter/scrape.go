package adapter

import (
	"context"
	"time"

	"docs-ingestion-service/internal/domain/model"
)

// ValidationResult is the outcome of checking one candidate URL.
type ValidationResult struct {
	IsValid      bool
	Errors       []string
	SanitizedURL string
}

// URLValidator validates and sanitizes ingestion URLs before any fetch.
type URLValidator interface {
	Validate(url string) ValidationResult
}

// FetchOptions tune one page fetch.
type FetchOptions struct {
	Timeout       time.Duration
	RespectRobots bool
}

// PageFetcher retrieves a page and extracts its textual content.
// Failures surface as scraping errors: retryable for 5xx/408/429 and
// timeouts, non-retryable for 401/403.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (*model.FetchedPage, error)
}
