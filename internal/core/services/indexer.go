package services

import (
	"context"
	"fmt"

	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driven"
	"github.com/revisely/corpus/internal/core/ports/driving"
	"github.com/revisely/corpus/internal/logger"
)

// Ensure Indexer implements the interface.
var _ driving.EmbeddingIndexer = (*Indexer)(nil)

// DefaultEmbedBatchSize bounds request size and cost per provider call.
const DefaultEmbedBatchSize = 100

// Indexer generates and persists embeddings for a document's pending
// chunks, batched and provider-aware.
type Indexer struct {
	store     driven.ChunkStore
	embedder  driven.EmbeddingService
	batchSize int
}

// NewIndexer creates a new embedding indexer. batchSize <= 0 means the
// default of 100.
func NewIndexer(store driven.ChunkStore, embedder driven.EmbeddingService, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &Indexer{
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// EmbedDocumentChunks embeds every pending chunk of the document in
// chunk-index order and returns how many were embedded.
//
// The run is resumable at batch granularity: when a batch fails, its
// chunks are marked failed and the error propagates, while batches
// already persisted stay complete and batches not yet attempted stay
// pending for a future retry.
func (ix *Indexer) EmbedDocumentChunks(ctx context.Context, documentID string) (int, error) {
	if ix.embedder == nil {
		return 0, domain.ErrEmbeddingUnavailable
	}

	doc, err := ix.store.GetDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("get document: %w", err)
	}
	if doc.ChunkingStatus != domain.ChunkingComplete {
		return 0, fmt.Errorf("%w: document %s has chunking status %q",
			domain.ErrDocumentNotChunked, documentID, doc.ChunkingStatus)
	}

	pending, err := ix.store.ListPendingChunks(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("list pending chunks: %w", err)
	}
	if len(pending) == 0 {
		logger.Debug("No pending chunks for document %s", documentID)
		return 0, nil
	}

	logger.Section("Embedding Generation")
	logger.Info("Embedding %d chunks for document %s with %s (%d dims)",
		len(pending), documentID, ix.embedder.ModelName(), ix.embedder.Dimensions())

	embedded := 0
	maxChars := ix.embedder.MaxInputChars()

	for start := 0; start < len(pending); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			// Silent truncation to the provider ceiling; lossy but
			// bounded, never an error.
			texts[i] = truncateChars(chunk.Content, maxChars)
		}

		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batch))
		}
		if err != nil {
			logger.Error("Batch %d-%d failed: %v", batch[0].Index, batch[len(batch)-1].Index, err)
			ids := make([]string, len(batch))
			for i, chunk := range batch {
				ids[i] = chunk.ID
			}
			if markErr := ix.store.MarkChunksEmbeddingFailed(ctx, ids); markErr != nil {
				logger.Warn("Could not mark batch failed: %v", markErr)
			}
			return embedded, fmt.Errorf("%w (chunks %d-%d): %w",
				domain.ErrEmbeddingBatch, batch[0].Index, batch[len(batch)-1].Index, err)
		}

		updates := make([]driven.ChunkEmbedding, len(batch))
		for i, chunk := range batch {
			updates[i] = driven.ChunkEmbedding{ChunkID: chunk.ID, Vector: vectors[i]}
		}
		if err := ix.store.SaveChunkEmbeddings(ctx, updates); err != nil {
			return embedded, fmt.Errorf("save embeddings: %w", err)
		}
		embedded += len(batch)
		logger.Debug("Embedded batch %d-%d", batch[0].Index, batch[len(batch)-1].Index)
	}

	// Stamp the provider and dimension on the document so vectors from a
	// different backend cannot silently mix into the same pool later.
	if err := ix.store.SetDocumentEmbedding(ctx, documentID,
		ix.embedder.ModelName(), ix.embedder.Dimensions()); err != nil {
		return embedded, fmt.Errorf("record embedding provider: %w", err)
	}

	logger.Info("Embedded %d chunks", embedded)
	return embedded, nil
}

// truncateChars cuts text to at most n bytes.
func truncateChars(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	return text[:n]
}
