package driven

import (
	"context"

	"github.com/revisely/corpus/internal/core/domain"
)

// ChunkEmbedding pairs a chunk id with its freshly generated vector.
type ChunkEmbedding struct {
	ChunkID string
	Vector  []float32
}

// ChunkStore is the persistence collaborator for documents, chunks,
// topics and concept maps. Exact schema and indexing technology are an
// implementation detail behind this contract.
type ChunkStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns all documents in a category.
	ListDocuments(ctx context.Context, categoryID string) ([]domain.Document, error)

	// SetChunkingStatus updates a document's segmentation state.
	SetChunkingStatus(ctx context.Context, documentID string, status domain.ChunkingStatus) error

	// ReplaceChunks atomically deletes a document's prior chunks, topics
	// and concept map, inserts the new ones, sets the document's chunk
	// and token counters and marks chunking complete. A reader never
	// observes a partially written chunk set.
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk, topics []domain.Topic, conceptMap *domain.ConceptMap) error

	// GetChunks returns all chunks for a document ordered by index.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// ListPendingChunks returns the document's chunks with embedding
	// status pending, ordered by index.
	ListPendingChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// SaveChunkEmbeddings persists vectors and flips each chunk's
	// embedding status to complete.
	SaveChunkEmbeddings(ctx context.Context, embeddings []ChunkEmbedding) error

	// MarkChunksEmbeddingFailed flips embedding status to failed for the
	// given chunks.
	MarkChunksEmbeddingFailed(ctx context.Context, chunkIDs []string) error

	// SetDocumentEmbedding records the provider name and vector
	// dimension used to embed a document's chunks.
	SetDocumentEmbedding(ctx context.Context, documentID, provider string, dimension int) error

	// ListEmbeddedChunks returns chunks with embedding status complete
	// across all documents in a category, optionally restricted to a
	// document id subset.
	ListEmbeddedChunks(ctx context.Context, categoryID string, documentIDs []string) ([]domain.Chunk, error)

	// GetConceptMap returns a document's concept map.
	GetConceptMap(ctx context.Context, documentID string) (*domain.ConceptMap, error)

	// GetTopics returns a document's topic segments in document order.
	GetTopics(ctx context.Context, documentID string) ([]domain.Topic, error)

	// Close releases resources.
	Close() error
}
