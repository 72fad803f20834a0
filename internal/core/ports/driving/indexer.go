package driving

import "context"

// EmbeddingIndexer generates and persists vectors for a document's
// pending chunks.
type EmbeddingIndexer interface {
	// EmbedDocumentChunks embeds every chunk currently pending for the
	// document and returns how many were embedded. No pending chunks is
	// a no-op, not an error. The indexer is resumable at batch
	// granularity: a batch failure leaves earlier batches complete and
	// later batches pending.
	EmbedDocumentChunks(ctx context.Context, documentID string) (int, error)
}
