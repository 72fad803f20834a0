package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/minio/highwayhash"

	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driven"
	"github.com/revisely/corpus/internal/core/ports/driving"
	"github.com/revisely/corpus/internal/logger"
	"github.com/revisely/corpus/internal/token"
)

// Ensure Retriever implements the interface.
var _ driving.RetrievalService = (*Retriever)(nil)

// Default context assembly budgets.
const (
	DefaultContextTokenBudget = 6000
	DefaultChunkTokenCap      = 1000
	maxFewShotExamples        = 3
)

// hashKey seeds the cache key hash. Fixed: keys only need to be stable
// within one process.
var hashKey = []byte("corpus-retrieval-cache-key-seed!")

// RetrieverConfig holds context assembly tunables. Zero values take
// defaults.
type RetrieverConfig struct {
	// ContextTokenBudget bounds the total formatted context (default 6000).
	ContextTokenBudget int

	// ChunkTokenCap truncates a single chunk's body when it alone
	// exceeds the cap (default 1000).
	ChunkTokenCap int
}

func (c *RetrieverConfig) applyDefaults() {
	if c.ContextTokenBudget <= 0 {
		c.ContextTokenBudget = DefaultContextTokenBudget
	}
	if c.ChunkTokenCap <= 0 {
		c.ChunkTokenCap = DefaultChunkTokenCap
	}
}

// Retriever executes similarity search over embedded chunks and
// assembles token-budgeted context strings for the downstream
// generator. It never mutates chunks.
type Retriever struct {
	store     driven.ChunkStore
	embedder  driven.EmbeddingService
	cache     driven.ContextCache
	estimator token.Estimator
	cfg       RetrieverConfig
}

// NewRetriever creates a new retrieval engine. The cache is optional;
// when nil every call hits the store.
func NewRetriever(
	store driven.ChunkStore,
	embedder driven.EmbeddingService,
	cache driven.ContextCache,
	estimator token.Estimator,
	cfg RetrieverConfig,
) *Retriever {
	cfg.applyDefaults()
	if estimator == nil {
		estimator = token.NewHeuristic()
	}
	return &Retriever{
		store:     store,
		embedder:  embedder,
		cache:     cache,
		estimator: estimator,
		cfg:       cfg,
	}
}

// RetrieveContext embeds the query and ranks embedded chunks in the
// category by cosine similarity (1 - cosine distance). Results below
// the threshold are dropped and at most TopK are returned, descending.
func (r *Retriever) RetrieveContext(
	ctx context.Context, categoryID, query string, opts domain.RetrievalOptions,
) ([]domain.RetrievedChunk, error) {
	if r.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	threshold := opts.SimilarityThreshold
	if threshold == 0 {
		threshold = domain.DefaultSimilarityThreshold
	}

	key := cacheKey(categoryID, query, opts.DocumentIDs, topK, threshold)
	if r.cache != nil && !opts.BypassCache {
		if cached, ok := r.cache.Get(key); ok {
			logger.Debug("Cache hit for category %s query %q", categoryID, query)
			return cached, nil
		}
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := r.store.ListEmbeddedChunks(ctx, categoryID, opts.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("list embedded chunks: %w", err)
	}
	if len(chunks) == 0 {
		// Nothing indexed yet; downstream generation falls back to raw
		// content.
		return []domain.RetrievedChunk{}, nil
	}

	results := make([]domain.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) != len(queryVec) {
			return nil, fmt.Errorf("%w: chunk %s has %d dims, query has %d",
				domain.ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), len(queryVec))
		}
		sim := cosineSimilarity(queryVec, chunk.Embedding)
		if sim >= threshold {
			results = append(results, domain.RetrievedChunk{Chunk: chunk, Similarity: sim})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}

	if r.cache != nil && !opts.BypassCache {
		r.cache.Put(key, results)
	}
	logger.Debug("Retrieved %d/%d chunks above threshold %.2f", len(results), len(chunks), threshold)
	return results, nil
}

// FormatContextForPrompt walks chunks in similarity-descending order and
// accumulates them against the token budget. Oversized chunk bodies are
// truncated to the per-chunk cap; once the budget is reached remaining
// chunks are dropped whole.
func (r *Retriever) FormatContextForPrompt(chunks []domain.RetrievedChunk, includeMetadata bool) string {
	if len(chunks) == 0 {
		return ""
	}

	var blocks []string
	used := 0
	for _, rc := range chunks {
		body := rc.Chunk.Content
		if r.estimator.Estimate(body) > r.cfg.ChunkTokenCap {
			body = truncateAtWord(body, token.CharBudget(r.cfg.ChunkTokenCap)) + "..."
		}

		var b strings.Builder
		if includeMetadata {
			if rc.Chunk.SectionTitle != "" {
				fmt.Fprintf(&b, "[Section: %s]\n", rc.Chunk.SectionTitle)
			}
			if rc.Chunk.PrimaryTopic != "" {
				fmt.Fprintf(&b, "[Topic: %s]\n", rc.Chunk.PrimaryTopic)
			}
		}
		b.WriteString(body)
		block := b.String()

		cost := r.estimator.Estimate(block)
		if used+cost > r.cfg.ContextTokenBudget {
			break
		}
		blocks = append(blocks, block)
		used += cost
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// BuildGenerationPromptContext composes the retrieved context with up to
// three few-shot exemplars, the quality criteria and the target
// taxonomy levels. Absent inputs omit their section entirely. This is
// pure formatting; no retrieval happens here.
func (r *Retriever) BuildGenerationPromptContext(
	chunks []domain.RetrievedChunk,
	examples []domain.FewShotExample,
	criteria *domain.QualityCriteria,
	bloomTargets []string,
) string {
	var sections []string

	if formatted := r.FormatContextForPrompt(chunks, true); formatted != "" {
		sections = append(sections, "## Retrieved Context\n\n"+formatted)
	}

	if len(examples) > 0 {
		if len(examples) > maxFewShotExamples {
			examples = examples[:maxFewShotExamples]
		}
		var b strings.Builder
		b.WriteString("## Example Questions\n")
		for i, ex := range examples {
			fmt.Fprintf(&b, "\nExample %d (quality score %.2f):\nQ: %s\nA: %s\n",
				i+1, ex.Score, ex.Question, ex.Answer)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	if criteria != nil {
		var b strings.Builder
		b.WriteString("## Quality Criteria\n\n")
		for _, name := range sortedWeightNames(criteria.Weights) {
			fmt.Fprintf(&b, "- %s: weight %.2f\n", name, criteria.Weights[name])
		}
		fmt.Fprintf(&b, "- minimum acceptable score: %.2f", criteria.MinScore)
		sections = append(sections, b.String())
	}

	if len(bloomTargets) > 0 {
		sections = append(sections,
			"## Target Cognitive Levels\n\n"+strings.Join(bloomTargets, ", "))
	}

	return strings.Join(sections, "\n\n")
}

// GetContextWithConcepts retrieves chunks once per topic, deduplicates
// the union by chunk id, re-sorts by similarity and formats the merged
// set. Used for balanced coverage across several named topics.
func (r *Retriever) GetContextWithConcepts(
	ctx context.Context, categoryID string, topics []string, documentIDs []string, chunksPerTopic int,
) (*driving.ConceptContext, error) {
	if chunksPerTopic <= 0 {
		chunksPerTopic = domain.DefaultChunksPerTopic
	}

	result := &driving.ConceptContext{
		PerTopic: make(map[string][]domain.RetrievedChunk, len(topics)),
	}
	best := make(map[string]domain.RetrievedChunk)

	for _, topic := range topics {
		hits, err := r.RetrieveContext(ctx, categoryID, topic, domain.RetrievalOptions{
			TopK:        chunksPerTopic,
			DocumentIDs: documentIDs,
		})
		if err != nil {
			return nil, fmt.Errorf("retrieve topic %q: %w", topic, err)
		}
		result.PerTopic[topic] = hits
		for _, hit := range hits {
			if prev, ok := best[hit.Chunk.ID]; !ok || hit.Similarity > prev.Similarity {
				best[hit.Chunk.ID] = hit
			}
		}
	}

	result.Merged = make([]domain.RetrievedChunk, 0, len(best))
	for _, hit := range best {
		result.Merged = append(result.Merged, hit)
	}
	sort.SliceStable(result.Merged, func(i, j int) bool {
		if result.Merged[i].Similarity != result.Merged[j].Similarity {
			return result.Merged[i].Similarity > result.Merged[j].Similarity
		}
		return result.Merged[i].Chunk.ID < result.Merged[j].Chunk.ID
	})
	result.Context = r.FormatContextForPrompt(result.Merged, true)
	return result, nil
}

// InvalidateCache evicts cached results for one category, or all
// entries when categoryID is empty.
func (r *Retriever) InvalidateCache(categoryID string) {
	if r.cache == nil {
		return
	}
	if categoryID == "" {
		r.cache.Clear()
		return
	}
	r.cache.InvalidatePrefix(categoryID + ":")
}

// cacheKey hashes the retrieval inputs into a category-prefixed key so
// invalidation can be scoped by category.
func cacheKey(categoryID, query string, documentIDs []string, topK int, threshold float64) string {
	sorted := append([]string(nil), documentIDs...)
	sort.Strings(sorted)

	h, err := highwayhash.New64(hashKey)
	if err != nil {
		// Key length is fixed and valid; this cannot happen at runtime.
		panic(err)
	}
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d\x00%g", categoryID, query, strings.Join(sorted, ","), topK, threshold)
	return categoryID + ":" + hex.EncodeToString(h.Sum(nil))
}

// cosineSimilarity returns 1 - cosine distance between two vectors.
// Zero-norm vectors yield zero similarity.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// truncateAtWord cuts text to at most n bytes at a word boundary.
func truncateAtWord(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := text[:n]
	if sp := strings.LastIndexByte(cut, ' '); sp > 0 {
		cut = cut[:sp]
	}
	return strings.TrimRight(cut, " \n\t")
}

// sortedWeightNames returns criteria weight names in stable order.
func sortedWeightNames(weights map[string]float64) []string {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
