package resilience

// ErrorResponse is the one-shot, user-and-operator-facing rendering of an
// error. Built once per error and never mutated afterwards.
type ErrorResponse struct {
	CanRetry     bool
	RetryAfterMs int64
	UserMessage  string
	LogMessage   string
	Code         string
	Category     Category
	Severity     Severity
	Remediation  string
}

var userMessages = map[Category]string{
	CategoryValidation:     "The provided URL is not valid.",
	CategoryScraping:       "The page could not be fetched or read.",
	CategoryEmbedding:      "The document could not be converted to embeddings.",
	CategoryStorage:        "The processed document could not be stored.",
	CategoryJob:            "The ingestion job could not be completed.",
	CategoryNetwork:        "A network problem interrupted processing.",
	CategoryRateLimit:      "The service is being rate limited; please retry shortly.",
	CategoryCircuitBreaker: "A dependency is temporarily unavailable.",
}

var remediations = map[Category]string{
	CategoryValidation:     "Check the URL format and scheme, then submit a new job.",
	CategoryScraping:       "Verify the page is publicly reachable and not behind authentication.",
	CategoryEmbedding:      "Retry later or reduce the document size.",
	CategoryStorage:        "Check index availability; the job can be retried once storage recovers.",
	CategoryJob:            "Inspect progress.errors for the failing stage, then retry the job.",
	CategoryNetwork:        "Retry the job; transient network failures usually clear quickly.",
	CategoryRateLimit:      "Wait for the indicated delay before retrying.",
	CategoryCircuitBreaker: "Wait for the breaker reset window before calling this component again.",
}

// Respond classifies err (when needed) and renders its response.
func Respond(err error, ctx *ErrorContext) ErrorResponse {
	perr := Classify(err, ctx)
	resp := ErrorResponse{
		CanRetry:    perr.Retryable,
		UserMessage: userMessages[perr.Category],
		LogMessage:  perr.Error(),
		Code:        perr.Code,
		Category:    perr.Category,
		Severity:    perr.Severity,
		Remediation: remediations[perr.Category],
	}
	if perr.RetryAfter > 0 {
		resp.RetryAfterMs = perr.RetryAfter.Milliseconds()
	}
	return resp
}
