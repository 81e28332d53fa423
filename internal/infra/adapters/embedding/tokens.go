package embedding

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"docs-ingestion-service/internal/domain/model"
)

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
)

// countTokens measures the real token cost of a batch for usage metrics.
// Falls back to the chunker's estimate when the encoding is unavailable
// (tiktoken lazily loads its vocabulary).
func countTokens(chunks []model.DocumentChunk) int {
	encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})

	total := 0
	for _, c := range chunks {
		if encoder != nil {
			total += len(encoder.Encode(c.Content, nil, nil))
		} else {
			total += c.TokenCount
		}
	}
	return total
}
