package model

import "time"

// ChunkMetadata locates a chunk within its source document.
type ChunkMetadata struct {
	SourceURL  string `json:"sourceUrl"`
	Title      string `json:"title"`
	Section    string `json:"section,omitempty"`
	ChunkIndex int    `json:"chunkIndex"`
}

// DocumentChunk is a bounded span of document text prepared for embedding.
// Chunk indices for one chunking call form a dense zero-based sequence in
// document order.
type DocumentChunk struct {
	ID         string
	Content    string
	Metadata   ChunkMetadata
	TokenCount int
}

// EmbeddedChunk pairs a chunk with its vector. The vector length must match
// the index's configured dimensionality before storage.
type EmbeddedChunk struct {
	DocumentChunk
	Vector     []float32
	EmbeddedAt time.Time
}

// FetchedPage is the extracted text content of one crawled URL.
type FetchedPage struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]string
	Links    []string
}
