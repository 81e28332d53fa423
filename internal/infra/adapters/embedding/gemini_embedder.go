package embedding

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/infra/metrics"
	"docs-ingestion-service/internal/resilience"
)

var _ adapter.Embedder = (*GeminiEmbedder)(nil)

// GeminiEmbedder implements adapter.Embedder using the official SDK.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dims int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	if dims <= 0 {
		dims = 768
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{client: c, model: model, dims: dims}, nil
}

func (g *GeminiEmbedder) Dimensions() int { return g.dims }

func (g *GeminiEmbedder) Embed(ctx context.Context, chunks []model.DocumentChunk) ([]model.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(chunks))
	for i, c := range chunks {
		contents[i] = genai.NewContentFromText(c.Content, genai.RoleUser)
	}

	outputDims := int32(g.dims)
	start := time.Now()
	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &outputDims,
	})
	latency := int(time.Since(start).Milliseconds())
	metrics.ObserveAPICall("gemini", "embed_content", latency, err == nil)
	if err != nil {
		return nil, resilience.NewEmbeddingError("gemini embed: "+err.Error(), true, nil, err)
	}

	metrics.AddEmbeddingTokens("gemini", g.model, countTokens(chunks))

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		vectors = append(vectors, emb.Values)
	}
	return assemble(chunks, vectors, g.dims)
}
