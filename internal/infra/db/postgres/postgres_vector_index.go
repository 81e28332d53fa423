package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
)

var _ adapter.VectorIndex = (*vectorIndex)(nil)

// vectorIndex persists embedded chunks into a chunks table with the vector
// stored as float4[]. Writes are per-chunk upserts keyed by chunk id, so a
// re-ingested URL overwrites its previous chunks in place.
type vectorIndex struct {
	pool *pgxpool.Pool
}

func NewVectorIndex(pool *pgxpool.Pool) *vectorIndex {
	return &vectorIndex{pool: pool}
}

// StoreBatch upserts each chunk independently: one bad chunk is reported in
// the result, never aborts the batch.
func (ix *vectorIndex) StoreBatch(ctx context.Context, chunks []model.EmbeddedChunk) (adapter.StoreResult, error) {
	const q = `
INSERT INTO document_chunks (id, source_url, title, section, chunk_index, token_count, content, embedding, embedded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
  source_url = EXCLUDED.source_url,
  title = EXCLUDED.title,
  section = EXCLUDED.section,
  chunk_index = EXCLUDED.chunk_index,
  token_count = EXCLUDED.token_count,
  content = EXCLUDED.content,
  embedding = EXCLUDED.embedding,
  embedded_at = EXCLUDED.embedded_at
RETURNING (xmax = 0) AS inserted;`

	var res adapter.StoreResult
	for _, c := range chunks {
		var inserted bool
		err := ix.pool.QueryRow(ctx, q,
			c.ID, c.Metadata.SourceURL, c.Metadata.Title, c.Metadata.Section,
			c.Metadata.ChunkIndex, c.TokenCount, c.Content, c.Vector, c.EmbeddedAt,
		).Scan(&inserted)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("chunk %s: %v", c.ID, err))
			continue
		}
		if inserted {
			res.Stored++
		} else {
			res.Updated++
		}
	}
	return res, nil
}
