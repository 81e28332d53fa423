package resilience

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var retryAfterPattern = regexp.MustCompile(`retry[-_ ]?after[:= ]*(\d+)`)

// Classify normalizes an arbitrary failure into a *PipelineError.
//
// Errors that already arrived typed pass through unchanged (with ctx attached
// when missing). Everything else goes through best-effort message-content
// heuristics. The substring matching is inherently fragile and exists for
// compatibility with untyped collaborator failures; prefer raising typed
// errors at the source.
func Classify(err error, ctx *ErrorContext) *PipelineError {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.WithContext(ctx)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "too many requests"):
		return NewRateLimitError(err.Error(), extractRetryAfter(msg), ctx, err)
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return NewNetworkError(err.Error(), ctx, err)
	case containsAny(msg, "401", "403", "unauthorized", "forbidden"):
		return NewScrapingError(err.Error(), false, ctx, err)
	case containsAny(msg, "database", "postgres", "sql", "storage"):
		return NewStorageError(err.Error(), true, ctx, err)
	case containsAny(msg, "embedding", "vector dimension"):
		return NewEmbeddingError(err.Error(), true, ctx, err)
	case containsAny(msg, "invalid url", "validation"):
		return NewValidationError(err.Error(), ctx)
	case containsAny(msg, "network", "connection", "no such host", "dns", "econnrefused"):
		return NewNetworkError(err.Error(), ctx, err)
	default:
		return NewJobError(err.Error(), ctx, err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// extractRetryAfter pulls an explicit delay out of a rate-limit message.
// The captured number is read as milliseconds; zero means "use the default".
func extractRetryAfter(msg string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if len(m) != 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
