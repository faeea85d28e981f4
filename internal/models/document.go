// Package models defines core data structures for documents, chunks, queries, and results.
package models

import "time"

// Document represents an ingested document and its ordered chunks.
type Document struct {
	ID          string    `json:"id" db:"id"`
	SourceLabel string    `json:"source_label" db:"source_label"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	ChunkIDs    []string  `json:"chunk_ids"`
}

// Chunk is a token-bounded passage of a document, the unit of embedding and retrieval.
// Chunks are immutable once created; their lifetime is bound to the owning document.
type Chunk struct {
	ID         string `json:"id" db:"id"`
	DocumentID string `json:"document_id" db:"document_id"`
	Position   int    `json:"position" db:"position"`
	Text       string `json:"text" db:"text"`
	TokenCount int    `json:"token_count" db:"token_count"`
	WordCount  int    `json:"word_count" db:"word_count"`
	// Truncated marks chunks that were hard-cut at the character level
	// because a single unbroken run of text exceeded the token ceiling.
	Truncated bool `json:"truncated,omitempty" db:"truncated"`
}

// IndexStats reports the size and shape of the vector index.
type IndexStats struct {
	TotalVectors   int `json:"total_vectors"`
	Dimension      int `json:"dimension"`
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
}
