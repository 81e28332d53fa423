package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/infra/metrics"
	"docs-ingestion-service/internal/resilience"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.Embedder = (*HTTPEmbedder)(nil)

// HTTPEmbedder implements adapter.Embedder against any OpenAI-compatible
// /embeddings endpoint (self-hosted gateways, TEI, ollama with the
// compatibility layer). Authorization: Bearer <key>, key optional for
// unauthenticated local servers.
type HTTPEmbedder struct {
	apiKey string
	base   string // e.g., http://embedder:9000/v1
	model  string
	dims   int
	client *http.Client
}

func NewHTTPEmbedder(apiKey, base, model string, dims int) (*HTTPEmbedder, error) {
	if base == "" {
		return nil, errors.New("embedding base url empty")
	}
	if model == "" {
		return nil, errors.New("embedding model empty")
	}
	if dims <= 0 {
		return nil, errors.New("embedding dimensions must be positive")
	}
	return &HTTPEmbedder{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (e *HTTPEmbedder) Dimensions() int { return e.dims }

func (e *HTTPEmbedder) Embed(ctx context.Context, chunks []model.DocumentChunk) ([]model.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = c.Content
	}

	reqBody := struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: e.model, Input: inputs}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, resilience.NewEmbeddingError("build request: "+err.Error(), false, nil, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveAPICall("http", "embeddings", latency, false)
		return nil, resilience.NewEmbeddingError("embeddings call: "+err.Error(), true, nil, err)
	}
	defer resp.Body.Close()
	metrics.ObserveAPICall("http", "embeddings", latency, resp.StatusCode < 300)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resilience.NewRateLimitError(
			fmt.Sprintf("embeddings http %d", resp.StatusCode), resilience.DefaultRetryAfter, nil, nil)
	}
	if resp.StatusCode >= 300 {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout
		return nil, resilience.NewEmbeddingError(
			fmt.Sprintf("embeddings http %d", resp.StatusCode), retryable, nil, nil)
	}

	var payload struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resilience.NewEmbeddingError("decode embeddings: "+err.Error(), true, nil, err)
	}

	metrics.AddEmbeddingTokens("http", e.model, countTokens(chunks))

	vectors := make([][]float32, len(payload.Data))
	for _, d := range payload.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, resilience.NewEmbeddingError("embeddings: index out of range", true, nil, nil)
		}
		vectors[d.Index] = d.Embedding
	}
	return assemble(chunks, vectors, e.dims)
}
