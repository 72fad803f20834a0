package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revisely/corpus/internal/adapters/driven/cache"
	"github.com/revisely/corpus/internal/adapters/driven/storage/memory"
	"github.com/revisely/corpus/internal/core/domain"
)

// embeddedChunk seeds one embedded chunk under the given document.
type embeddedChunk struct {
	id           string
	vector       []float32
	sectionTitle string
	primaryTopic string
	content      string
}

func seedEmbeddedDocument(t *testing.T, store *memory.ChunkStore, docID, categoryID string, seeds []embeddedChunk) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{
		ID:         docID,
		CategoryID: categoryID,
	}))

	chunks := make([]domain.Chunk, len(seeds))
	for i, seed := range seeds {
		content := seed.content
		if content == "" {
			content = fmt.Sprintf("Content of %s.", seed.id)
		}
		chunks[i] = domain.Chunk{
			ID:              seed.id,
			DocumentID:      docID,
			Index:           i,
			Content:         content,
			TokenCount:      10,
			SectionTitle:    seed.sectionTitle,
			PrimaryTopic:    seed.primaryTopic,
			EmbeddingStatus: domain.EmbeddingComplete,
			Embedding:       seed.vector,
		}
	}
	require.NoError(t, store.ReplaceChunks(ctx, docID, chunks, nil, nil))
}

func setupRetriever(t *testing.T) (*Retriever, *memory.ChunkStore, *mockEmbedder, *cache.Memory) {
	t.Helper()
	store := memory.NewChunkStore()
	embedder := newMockEmbedder(3)
	contextCache := cache.NewMemory()
	r := NewRetriever(store, embedder, contextCache, nil, RetrieverConfig{})
	return r, store, embedder, contextCache
}

func TestRetrieveContext_RanksBySimilarity(t *testing.T) {
	r, store, embedder, _ := setupRetriever(t)
	embedder.queryVec = []float32{1, 0, 0}

	seedEmbeddedDocument(t, store, "doc-1", "biology", []embeddedChunk{
		{id: "c-ortho", vector: []float32{0, 1, 0}},    // 0.0, below threshold
		{id: "c-exact", vector: []float32{1, 0, 0}},    // 1.0
		{id: "c-close", vector: []float32{0.8, 0.6, 0}}, // 0.8
	})

	results, err := r.RetrieveContext(context.Background(), "biology", "what is a cell", domain.RetrievalOptions{})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "c-exact", results[0].Chunk.ID)
	assert.Equal(t, "c-close", results[1].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.InDelta(t, 0.8, results[1].Similarity, 1e-6)
}

func TestRetrieveContext_TopKLimit(t *testing.T) {
	r, store, embedder, _ := setupRetriever(t)
	embedder.queryVec = []float32{1, 0, 0}

	seeds := make([]embeddedChunk, 5)
	for i := range seeds {
		// All well above threshold, with decreasing similarity.
		seeds[i] = embeddedChunk{
			id:     fmt.Sprintf("c%d", i),
			vector: []float32{1, float32(i) * 0.2, 0},
		}
	}
	seedEmbeddedDocument(t, store, "doc-1", "biology", seeds)

	results, err := r.RetrieveContext(context.Background(), "biology", "cells", domain.RetrievalOptions{TopK: 2})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "c0", results[0].Chunk.ID)
	assert.Equal(t, "c1", results[1].Chunk.ID)
}

func TestRetrieveContext_CustomThreshold(t *testing.T) {
	r, store, embedder, _ := setupRetriever(t)
	embedder.queryVec = []float32{1, 0, 0}

	seedEmbeddedDocument(t, store, "doc-1", "biology", []embeddedChunk{
		{id: "c-exact", vector: []float32{1, 0, 0}},
		{id: "c-ortho", vector: []float32{0, 1, 0}},
	})

	results, err := r.RetrieveContext(context.Background(), "biology", "cells",
		domain.RetrievalOptions{SimilarityThreshold: -1})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = r.RetrieveContext(context.Background(), "biology", "cells",
		domain.RetrievalOptions{SimilarityThreshold: 0.99, BypassCache: true})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRetrieveContext_DocumentFilter(t *testing.T) {
	r, store, embedder, _ := setupRetriever(t)
	embedder.queryVec = []float32{1, 0, 0}

	seedEmbeddedDocument(t, store, "doc-1", "biology", []embeddedChunk{
		{id: "c-doc1", vector: []float32{1, 0, 0}},
	})
	seedEmbeddedDocument(t, store, "doc-2", "biology", []embeddedChunk{
		{id: "c-doc2", vector: []float32{1, 0, 0}},
	})

	results, err := r.RetrieveContext(context.Background(), "biology", "cells",
		domain.RetrievalOptions{DocumentIDs: []string{"doc-2"}})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "c-doc2", results[0].Chunk.ID)
}

func TestRetrieveContext_CacheHitSkipsEmbedder(t *testing.T) {
	r, store, embedder, _ := setupRetriever(t)
	embedder.queryVec = []float32{1, 0, 0}

	seedEmbeddedDocument(t, store, "doc-1", "biology", []embeddedChunk{
		{id: "c1", vector: []float32{1, 0, 0}},
	})
	ctx := context.Background()

	first, err := r.RetrieveContext(ctx, "biology", "cells", domain.RetrievalOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.embedCalls)

	second, err := r.RetrieveContext(ctx, "biology", "cells", domain.RetrievalOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.embedCalls)
	assert.Equal(t, first, second)

	// BypassCache goes back to the embedder and does not populate the cache
	_, err = r.RetrieveContext(ctx, "biology", "cells", domain.RetrievalOptions{BypassCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.embedCalls)
}

func TestInvalidateCache(t *testing.T) {
	r, store, embedder, contextCache := setupRetriever(t)
	embedder.queryVec = []float32{1, 0, 0}

	seedEmbeddedDocument(t, store, "doc-1", "biology", []embeddedChunk{
		{id: "c1", vector: []float32{1, 0, 0}},
	})
	seedEmbeddedDocument(t, store, "doc-2", "history", []embeddedChunk{
		{id: "c2", vector: []float32{1, 0, 0}},
	})
	ctx := context.Background()

	_, err := r.RetrieveContext(ctx, "biology", "cells", domain.RetrievalOptions{})
	require.NoError(t, err)
	_, err = r.RetrieveContext(ctx, "history", "treaties", domain.RetrievalOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, contextCache.Len())

	r.InvalidateCache("biology")
	assert.Equal(t, 1, contextCache.Len())

	// The biology entry is gone, the history one survives
	_, err = r.RetrieveContext(ctx, "history", "treaties", domain.RetrievalOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.embedCalls)

	r.InvalidateCache("")
	assert.Equal(t, 0, contextCache.Len())
}

func TestRetrieveContext_EmptyQuery(t *testing.T) {
	r, _, _, _ := setupRetriever(t)

	_, err := r.RetrieveContext(context.Background(), "biology", "   ", domain.RetrievalOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetrieveContext_NoEmbedder(t *testing.T) {
	r := NewRetriever(memory.NewChunkStore(), nil, nil, nil, RetrieverConfig{})

	_, err := r.RetrieveContext(context.Background(), "biology", "cells", domain.RetrievalOptions{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestRetrieveContext_NothingIndexed(t *testing.T) {
	r, _, embedder, _ := setupRetriever(t)
	embedder.queryVec = []float32{1, 0, 0}

	results, err := r.RetrieveContext(context.Background(), "biology", "cells", domain.RetrievalOptions{})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetrieveContext_DimensionMismatch(t *testing.T) {
	r, store, embedder, _ := setupRetriever(t)
	embedder.queryVec = []float32{1, 0, 0}

	seedEmbeddedDocument(t, store, "doc-1", "biology", []embeddedChunk{
		{id: "c1", vector: []float32{1, 0, 0, 0, 0}},
	})

	_, err := r.RetrieveContext(context.Background(), "biology", "cells", domain.RetrievalOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "c1")
}

func retrieved(id, content, section, topic string, sim float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		Chunk: domain.Chunk{
			ID:           id,
			Content:      content,
			SectionTitle: section,
			PrimaryTopic: topic,
		},
		Similarity: sim,
	}
}

func TestFormatContextForPrompt_Metadata(t *testing.T) {
	r := NewRetriever(memory.NewChunkStore(), nil, nil, nil, RetrieverConfig{})

	chunks := []domain.RetrievedChunk{
		retrieved("c1", "Mitochondria produce ATP.", "Cell Energy", "Mitochondria", 0.9),
		retrieved("c2", "Ribosomes synthesise proteins.", "", "", 0.8),
	}

	formatted := r.FormatContextForPrompt(chunks, true)
	assert.Contains(t, formatted, "[Section: Cell Energy]")
	assert.Contains(t, formatted, "[Topic: Mitochondria]")
	assert.Contains(t, formatted, "Mitochondria produce ATP.")
	assert.Contains(t, formatted, "\n\n---\n\n")
	assert.Contains(t, formatted, "Ribosomes synthesise proteins.")

	bare := r.FormatContextForPrompt(chunks, false)
	assert.NotContains(t, bare, "[Section:")
	assert.NotContains(t, bare, "[Topic:")
}

func TestFormatContextForPrompt_Empty(t *testing.T) {
	r := NewRetriever(memory.NewChunkStore(), nil, nil, nil, RetrieverConfig{})
	assert.Equal(t, "", r.FormatContextForPrompt(nil, true))
}

func TestFormatContextForPrompt_BudgetDropsWholeChunks(t *testing.T) {
	r := NewRetriever(memory.NewChunkStore(), nil, nil, nil, RetrieverConfig{
		ContextTokenBudget: 30,
	})

	// Each chunk is roughly 25 tokens, so only the first fits the budget.
	body := strings.Repeat("word ", 20)
	chunks := []domain.RetrievedChunk{
		retrieved("c1", "FIRST "+body, "", "", 0.9),
		retrieved("c2", "SECOND "+body, "", "", 0.8),
	}

	formatted := r.FormatContextForPrompt(chunks, false)
	assert.Contains(t, formatted, "FIRST")
	assert.NotContains(t, formatted, "SECOND")
	assert.NotContains(t, formatted, "---")
}

func TestFormatContextForPrompt_OversizedChunkTruncated(t *testing.T) {
	r := NewRetriever(memory.NewChunkStore(), nil, nil, nil, RetrieverConfig{
		ChunkTokenCap: 10,
	})

	body := strings.Repeat("photosynthesis ", 50)
	chunks := []domain.RetrievedChunk{retrieved("c1", body, "", "", 0.9)}

	formatted := r.FormatContextForPrompt(chunks, false)
	assert.True(t, strings.HasSuffix(formatted, "..."))
	assert.Less(t, len(formatted), len(body))
	// Cut lands on a word boundary, not mid-word
	trimmed := strings.TrimSuffix(formatted, "...")
	assert.True(t, strings.HasSuffix(trimmed, "photosynthesis"))
}

func TestBuildGenerationPromptContext_AllSections(t *testing.T) {
	r := NewRetriever(memory.NewChunkStore(), nil, nil, nil, RetrieverConfig{})

	chunks := []domain.RetrievedChunk{
		retrieved("c1", "Mitochondria produce ATP.", "Cell Energy", "Mitochondria", 0.9),
	}
	examples := []domain.FewShotExample{
		{Question: "What organelle produces ATP?", Answer: "The mitochondrion.", Score: 0.95},
	}
	criteria := &domain.QualityCriteria{
		Weights:  map[string]float64{"relevance": 0.5, "clarity": 0.3},
		MinScore: 0.7,
	}

	prompt := r.BuildGenerationPromptContext(chunks, examples, criteria, []string{"analyse", "apply"})

	assert.Contains(t, prompt, "## Retrieved Context")
	assert.Contains(t, prompt, "Mitochondria produce ATP.")
	assert.Contains(t, prompt, "## Example Questions")
	assert.Contains(t, prompt, "Q: What organelle produces ATP?")
	assert.Contains(t, prompt, "A: The mitochondrion.")
	assert.Contains(t, prompt, "quality score 0.95")
	assert.Contains(t, prompt, "## Quality Criteria")
	assert.Contains(t, prompt, "- clarity: weight 0.30")
	assert.Contains(t, prompt, "- relevance: weight 0.50")
	assert.Contains(t, prompt, "minimum acceptable score: 0.70")
	assert.Contains(t, prompt, "## Target Cognitive Levels")
	assert.Contains(t, prompt, "analyse, apply")

	// Weight names come out sorted
	assert.Less(t, strings.Index(prompt, "clarity"), strings.Index(prompt, "relevance"))
}

func TestBuildGenerationPromptContext_OmitsAbsentSections(t *testing.T) {
	r := NewRetriever(memory.NewChunkStore(), nil, nil, nil, RetrieverConfig{})

	chunks := []domain.RetrievedChunk{
		retrieved("c1", "Mitochondria produce ATP.", "", "", 0.9),
	}
	prompt := r.BuildGenerationPromptContext(chunks, nil, nil, nil)

	assert.Contains(t, prompt, "## Retrieved Context")
	assert.NotContains(t, prompt, "## Example Questions")
	assert.NotContains(t, prompt, "## Quality Criteria")
	assert.NotContains(t, prompt, "## Target Cognitive Levels")

	assert.Equal(t, "", r.BuildGenerationPromptContext(nil, nil, nil, nil))
}

func TestBuildGenerationPromptContext_ExampleCap(t *testing.T) {
	r := NewRetriever(memory.NewChunkStore(), nil, nil, nil, RetrieverConfig{})

	examples := make([]domain.FewShotExample, 5)
	for i := range examples {
		examples[i] = domain.FewShotExample{
			Question: fmt.Sprintf("Question %d?", i+1),
			Answer:   fmt.Sprintf("Answer %d.", i+1),
			Score:    0.9,
		}
	}

	prompt := r.BuildGenerationPromptContext(nil, examples, nil, nil)
	assert.Contains(t, prompt, "Example 3")
	assert.NotContains(t, prompt, "Example 4")
	assert.NotContains(t, prompt, "Question 4?")
}

func TestGetContextWithConcepts_DedupesByBestSimilarity(t *testing.T) {
	r, store, embedder, _ := setupRetriever(t)
	embedder.dims = 2
	embedder.queryVecs = map[string][]float32{
		"cell energy":       {1, 0},
		"protein synthesis": {0, 1},
	}

	seedEmbeddedDocument(t, store, "doc-1", "biology", []embeddedChunk{
		{id: "c-energy", vector: []float32{1, 0}},
		{id: "c-both", vector: []float32{0.8, 0.6}},
		{id: "c-protein", vector: []float32{0, 1}},
	})

	result, err := r.GetContextWithConcepts(context.Background(), "biology",
		[]string{"cell energy", "protein synthesis"}, nil, 5)
	require.NoError(t, err)

	require.Len(t, result.PerTopic, 2)
	assert.Len(t, result.PerTopic["cell energy"], 2)
	assert.Len(t, result.PerTopic["protein synthesis"], 2)

	// c-both matched both topics; the merged set keeps its better score
	require.Len(t, result.Merged, 3)
	assert.Equal(t, "c-both", result.Merged[2].Chunk.ID)
	assert.InDelta(t, 0.8, result.Merged[2].Similarity, 1e-6)

	// Equal-similarity chunks tie-break on id for a stable order
	assert.Equal(t, "c-energy", result.Merged[0].Chunk.ID)
	assert.Equal(t, "c-protein", result.Merged[1].Chunk.ID)

	assert.Contains(t, result.Context, "Content of c-energy.")
	assert.Contains(t, result.Context, "Content of c-both.")
}

func TestCacheKey(t *testing.T) {
	base := cacheKey("biology", "cells", nil, 20, 0.3)

	assert.True(t, strings.HasPrefix(base, "biology:"))
	assert.Equal(t, base, cacheKey("biology", "cells", nil, 20, 0.3))
	assert.NotEqual(t, base, cacheKey("biology", "tissues", nil, 20, 0.3))
	assert.NotEqual(t, base, cacheKey("biology", "cells", nil, 10, 0.3))
	assert.NotEqual(t, base, cacheKey("biology", "cells", nil, 20, 0.5))
	assert.NotEqual(t, base, cacheKey("history", "cells", nil, 20, 0.3))
	assert.NotEqual(t, base, cacheKey("biology", "cells", []string{"doc-1"}, 20, 0.3))

	// Document order does not matter
	assert.Equal(t,
		cacheKey("biology", "cells", []string{"doc-1", "doc-2"}, 20, 0.3),
		cacheKey("biology", "cells", []string{"doc-2", "doc-1"}, 20, 0.3))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{5, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestTruncateAtWord(t *testing.T) {
	assert.Equal(t, "short", truncateAtWord("short", 100))
	assert.Equal(t, "one two", truncateAtWord("one two three", 10))
	// No space before the limit falls back to a hard cut
	assert.Equal(t, "abcdefghij", truncateAtWord("abcdefghijklmno", 10))
}

func TestNewRetriever_Defaults(t *testing.T) {
	r := NewRetriever(memory.NewChunkStore(), nil, nil, nil, RetrieverConfig{})
	assert.Equal(t, DefaultContextTokenBudget, r.cfg.ContextTokenBudget)
	assert.Equal(t, DefaultChunkTokenCap, r.cfg.ChunkTokenCap)
	assert.NotNil(t, r.estimator)
}
