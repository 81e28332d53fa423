package embedding

import (
	"fmt"
	"time"

	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/resilience"
)

// assemble pairs each chunk with its vector, enforcing the configured
// dimensionality before anything reaches storage.
func assemble(chunks []model.DocumentChunk, vectors [][]float32, dims int) ([]model.EmbeddedChunk, error) {
	if len(vectors) != len(chunks) {
		return nil, resilience.NewEmbeddingError(
			fmt.Sprintf("provider returned %d vectors for %d chunks", len(vectors), len(chunks)),
			true, nil, nil)
	}

	now := time.Now()
	out := make([]model.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dims {
			return nil, resilience.NewEmbeddingError(
				fmt.Sprintf("vector dimension mismatch for chunk %s: got %d, want %d", c.ID, len(vectors[i]), dims),
				false, nil, nil)
		}
		out[i] = model.EmbeddedChunk{
			DocumentChunk: c,
			Vector:        vectors[i],
			EmbeddedAt:    now,
		}
	}
	return out, nil
}
