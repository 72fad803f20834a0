// Package memory provides in-memory storage adapters, used in tests and
// as the default store when the library is embedded without persistence.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore is an in-memory implementation of driven.ChunkStore.
// Safe for concurrent use.
type ChunkStore struct {
	mu          sync.RWMutex
	documents   map[string]domain.Document
	chunks      map[string][]domain.Chunk // by document ID, ordered by index
	topics      map[string][]domain.Topic
	conceptMaps map[string]domain.ConceptMap
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		documents:   make(map[string]domain.Document),
		chunks:      make(map[string][]domain.Chunk),
		topics:      make(map[string][]domain.Topic),
		conceptMaps: make(map[string]domain.ConceptMap),
	}
}

// SaveDocument stores or updates a document.
func (s *ChunkStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *doc
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = time.Now().UTC()
	if stored.ChunkingStatus == "" {
		stored.ChunkingStatus = domain.ChunkingPending
	}
	s.documents[doc.ID] = stored
	return nil
}

// GetDocument retrieves a document by ID.
func (s *ChunkStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// ListDocuments returns all documents in a category.
func (s *ChunkStore) ListDocuments(_ context.Context, categoryID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.Document
	for _, doc := range s.documents {
		if doc.CategoryID == categoryID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// SetChunkingStatus updates a document's segmentation state.
func (s *ChunkStore) SetChunkingStatus(_ context.Context, documentID string, status domain.ChunkingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return domain.ErrNotFound
	}
	doc.ChunkingStatus = status
	doc.UpdatedAt = time.Now().UTC()
	s.documents[documentID] = doc
	return nil
}

// ReplaceChunks swaps in a new chunk set, topics and concept map under
// one lock, so readers never see a partial replacement.
func (s *ChunkStore) ReplaceChunks(
	_ context.Context,
	documentID string,
	chunks []domain.Chunk,
	topics []domain.Topic,
	conceptMap *domain.ConceptMap,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return domain.ErrNotFound
	}

	s.chunks[documentID] = append([]domain.Chunk(nil), chunks...)
	s.topics[documentID] = append([]domain.Topic(nil), topics...)
	if conceptMap != nil {
		s.conceptMaps[documentID] = *conceptMap
	} else {
		delete(s.conceptMaps, documentID)
	}

	totalTokens := 0
	for _, chunk := range chunks {
		totalTokens += chunk.TokenCount
	}
	doc.ChunkingStatus = domain.ChunkingComplete
	doc.TotalChunks = len(chunks)
	doc.TotalTokens = totalTokens
	doc.UpdatedAt = time.Now().UTC()
	s.documents[documentID] = doc
	return nil
}

// GetChunks returns all chunks for a document ordered by index.
func (s *ChunkStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := append([]domain.Chunk(nil), s.chunks[documentID]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// ListPendingChunks returns the document's pending chunks ordered by index.
func (s *ChunkStore) ListPendingChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []domain.Chunk
	for _, chunk := range s.chunks[documentID] {
		if chunk.EmbeddingStatus == domain.EmbeddingPending {
			pending = append(pending, chunk)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Index < pending[j].Index })
	return pending, nil
}

// SaveChunkEmbeddings persists vectors and marks their chunks complete.
func (s *ChunkStore) SaveChunkEmbeddings(_ context.Context, embeddings []driven.ChunkEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[string][]float32, len(embeddings))
	for _, e := range embeddings {
		byID[e.ChunkID] = e.Vector
	}
	for docID, chunks := range s.chunks {
		for i := range chunks {
			if vec, ok := byID[chunks[i].ID]; ok {
				chunks[i].Embedding = append([]float32(nil), vec...)
				chunks[i].EmbeddingStatus = domain.EmbeddingComplete
			}
		}
		s.chunks[docID] = chunks
	}
	return nil
}

// MarkChunksEmbeddingFailed marks the given chunks failed.
func (s *ChunkStore) MarkChunksEmbeddingFailed(_ context.Context, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		ids[id] = struct{}{}
	}
	for docID, chunks := range s.chunks {
		for i := range chunks {
			if _, ok := ids[chunks[i].ID]; ok {
				chunks[i].EmbeddingStatus = domain.EmbeddingFailed
			}
		}
		s.chunks[docID] = chunks
	}
	return nil
}

// SetDocumentEmbedding records which backend embedded the document.
func (s *ChunkStore) SetDocumentEmbedding(_ context.Context, documentID, provider string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return domain.ErrNotFound
	}
	doc.EmbeddingProvider = provider
	doc.EmbeddingDimension = dimension
	doc.UpdatedAt = time.Now().UTC()
	s.documents[documentID] = doc
	return nil
}

// ListEmbeddedChunks returns embedded chunks across the category,
// optionally restricted to a document subset.
func (s *ChunkStore) ListEmbeddedChunks(_ context.Context, categoryID string, documentIDs []string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subset := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		subset[id] = struct{}{}
	}

	var result []domain.Chunk
	for docID, chunks := range s.chunks {
		doc, ok := s.documents[docID]
		if !ok || doc.CategoryID != categoryID {
			continue
		}
		if len(subset) > 0 {
			if _, ok := subset[docID]; !ok {
				continue
			}
		}
		for _, chunk := range chunks {
			if chunk.EmbeddingStatus == domain.EmbeddingComplete {
				result = append(result, chunk)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DocumentID != result[j].DocumentID {
			return result[i].DocumentID < result[j].DocumentID
		}
		return result[i].Index < result[j].Index
	})
	return result, nil
}

// GetConceptMap returns a document's concept map.
func (s *ChunkStore) GetConceptMap(_ context.Context, documentID string) (*domain.ConceptMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cm, ok := s.conceptMaps[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cm, nil
}

// GetTopics returns a document's topic segments in document order.
func (s *ChunkStore) GetTopics(_ context.Context, documentID string) ([]domain.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := append([]domain.Topic(nil), s.topics[documentID]...)
	sort.Slice(topics, func(i, j int) bool { return topics[i].StartChar < topics[j].StartChar })
	return topics, nil
}

// Close releases resources. No-op for the in-memory store.
func (s *ChunkStore) Close() error {
	return nil
}
