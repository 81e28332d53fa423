package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
)

var _ adapter.Embedder = (*NoopEmbedder)(nil)

// NoopEmbedder implements adapter.Embedder for local/dev testing. Vectors
// are deterministic functions of the chunk content so re-runs are stable.
type NoopEmbedder struct {
	dims int
}

func NewNoopEmbedder(dims int) *NoopEmbedder {
	if dims <= 0 {
		dims = 16
	}
	return &NoopEmbedder{dims: dims}
}

func (n *NoopEmbedder) Dimensions() int { return n.dims }

func (n *NoopEmbedder) Embed(ctx context.Context, chunks []model.DocumentChunk) ([]model.EmbeddedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		vectors[i] = pseudoVector(c.Content, n.dims)
	}
	return assemble(chunks, vectors, n.dims)
}

func pseudoVector(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(math.Sin(float64(seed % 10007)))
	}
	return vec
}
