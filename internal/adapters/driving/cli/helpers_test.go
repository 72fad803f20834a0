package cli

import (
	"context"
	"errors"

	"github.com/revisely/corpus/internal/adapters/driven/storage/memory"
	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driving"
)

// mockRetrievalService returns canned results.
type mockRetrievalService struct {
	results     []domain.RetrievedChunk
	invalidated []string
}

var _ driving.RetrievalService = (*mockRetrievalService)(nil)

func (m *mockRetrievalService) RetrieveContext(_ context.Context, _, _ string, _ domain.RetrievalOptions) ([]domain.RetrievedChunk, error) {
	return m.results, nil
}

func (m *mockRetrievalService) FormatContextForPrompt(chunks []domain.RetrievedChunk, _ bool) string {
	out := ""
	for _, chunk := range chunks {
		out += chunk.Chunk.Content + "\n"
	}
	return out
}

func (m *mockRetrievalService) BuildGenerationPromptContext(chunks []domain.RetrievedChunk, _ []domain.FewShotExample, _ *domain.QualityCriteria, _ []string) string {
	return m.FormatContextForPrompt(chunks, true)
}

func (m *mockRetrievalService) GetContextWithConcepts(_ context.Context, _ string, topics []string, _ []string, _ int) (*driving.ConceptContext, error) {
	return &driving.ConceptContext{Merged: m.results}, nil
}

func (m *mockRetrievalService) InvalidateCache(categoryID string) {
	m.invalidated = append(m.invalidated, categoryID)
}

// mockRetrievalServiceError fails every retrieval.
type mockRetrievalServiceError struct {
	mockRetrievalService
}

func (m *mockRetrievalServiceError) RetrieveContext(_ context.Context, _, _ string, _ domain.RetrievalOptions) ([]domain.RetrievedChunk, error) {
	return nil, errors.New("embedding service down")
}

// mockSegmenter records which documents were segmented.
type mockSegmenter struct {
	segmented []string
	err       error
}

var _ driving.DocumentSegmenter = (*mockSegmenter)(nil)

func (m *mockSegmenter) SegmentDocument(_ context.Context, documentID string) error {
	if m.err != nil {
		return m.err
	}
	m.segmented = append(m.segmented, documentID)
	return nil
}

// mockIndexer records which documents were embedded.
type mockIndexer struct {
	embedded []string
	count    int
	err      error
}

var _ driving.EmbeddingIndexer = (*mockIndexer)(nil)

func (m *mockIndexer) EmbedDocumentChunks(_ context.Context, documentID string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.embedded = append(m.embedded, documentID)
	return m.count, nil
}

// setupTestServices wires mock services and returns a cleanup function
// restoring the previous wiring.
func setupTestServices() (store *memory.ChunkStore, retrieval *mockRetrievalService, segmenter *mockSegmenter, indexer *mockIndexer, cleanup func()) {
	oldStore := chunkStore
	oldRetrieval := retrievalService
	oldSegmenter := segmenterService
	oldIndexer := indexerService

	store = memory.NewChunkStore()
	retrieval = &mockRetrievalService{
		results: []domain.RetrievedChunk{
			{
				Chunk: domain.Chunk{
					ID:           "chunk-1",
					DocumentID:   "doc-1",
					Index:        0,
					Content:      "Mitochondria produce ATP.",
					PrimaryTopic: "Cellular Respiration",
				},
				Similarity: 0.95,
			},
		},
	}
	segmenter = &mockSegmenter{}
	indexer = &mockIndexer{count: 3}

	chunkStore = store
	retrievalService = retrieval
	segmenterService = segmenter
	indexerService = indexer

	cleanup = func() {
		chunkStore = oldStore
		retrievalService = oldRetrieval
		segmenterService = oldSegmenter
		indexerService = oldIndexer
		ingestID = ""
		ingestTitle = ""
		rootCmd.SetArgs(nil)
	}
	return store, retrieval, segmenter, indexer, cleanup
}
