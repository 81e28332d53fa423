package adapter

import (
	"context"

	"docs-ingestion-service/internal/domain/model"
)

// Embedder turns document chunks into embedded chunks via an external model.
// Implementations must reject vectors whose length does not match the
// configured dimensionality.
type Embedder interface {
	Embed(ctx context.Context, chunks []model.DocumentChunk) ([]model.EmbeddedChunk, error)

	// Dimensions returns the vector dimensionality this embedder produces.
	Dimensions() int
}

// StoreResult reports the outcome of one vector-index batch write.
type StoreResult struct {
	Stored  int
	Updated int
	Failed  int
	Errors  []string
}

// VectorIndex persists embedded chunks into the searchable index.
// Per-item failures are reported in the result rather than failing the call.
type VectorIndex interface {
	StoreBatch(ctx context.Context, chunks []model.EmbeddedChunk) (StoreResult, error)
}
