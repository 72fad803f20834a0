package domain

import "time"

// ChunkingStatus tracks the segmentation lifecycle of a document.
type ChunkingStatus string

// Segmentation lifecycle states.
const (
	ChunkingPending    ChunkingStatus = "pending"
	ChunkingProcessing ChunkingStatus = "processing"
	ChunkingComplete   ChunkingStatus = "complete"
	ChunkingFailed     ChunkingStatus = "failed"
)

// EmbeddingStatus tracks whether a chunk has been embedded.
type EmbeddingStatus string

// Embedding lifecycle states.
const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingComplete EmbeddingStatus = "complete"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// Document represents a study document whose text has already been
// extracted by an upstream collaborator. It owns zero or more chunks.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// CategoryID groups documents into a retrieval pool.
	CategoryID string

	// Title is the human-readable title.
	Title string

	// Content is the full extracted plain text, before chunking.
	Content string

	// ChunkingStatus reflects the segmentation state machine:
	// pending -> processing -> complete|failed.
	ChunkingStatus ChunkingStatus

	// TotalChunks and TotalTokens are summary counters set once
	// segmentation finishes.
	TotalChunks int
	TotalTokens int

	// EmbeddingProvider and EmbeddingDimension record which backend
	// embedded this document's chunks. They are set after the first
	// indexing run so that vectors from different backends cannot be
	// silently mixed within one retrieval pool.
	EmbeddingProvider  string
	EmbeddingDimension int

	// CreatedAt is when the document was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the document was last updated.
	UpdatedAt time.Time
}
