package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/infra/metrics"
	"docs-ingestion-service/internal/resilience"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder implements adapter.Embedder using the official SDK's
// embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dims   int
}

func NewOpenAIEmbedder(apiKey, model string, dims int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims <= 0 {
		dims = 1536
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		dims:   dims,
	}, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

func (e *OpenAIEmbedder) Embed(ctx context.Context, chunks []model.DocumentChunk) ([]model.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = c.Content
	}

	start := time.Now()
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(int64(e.dims)),
	})
	latency := int(time.Since(start).Milliseconds())
	metrics.ObserveAPICall("openai", "embeddings", latency, err == nil)
	if err != nil {
		return nil, resilience.NewEmbeddingError("openai embeddings: "+err.Error(), true, nil, err)
	}

	metrics.AddEmbeddingTokens("openai", e.model, countTokens(chunks))

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if int(d.Index) >= len(vectors) {
			return nil, resilience.NewEmbeddingError("openai embeddings: index out of range", true, nil, nil)
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		vectors[d.Index] = vec
	}
	return assemble(chunks, vectors, e.dims)
}
