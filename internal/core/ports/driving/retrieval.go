package driving

import (
	"context"

	"github.com/revisely/corpus/internal/core/domain"
)

// ConceptContext is the result of a multi-topic retrieval: the per-topic
// hits, the deduplicated union re-sorted by similarity, and the
// formatted context string.
type ConceptContext struct {
	PerTopic map[string][]domain.RetrievedChunk
	Merged   []domain.RetrievedChunk
	Context  string
}

// RetrievalService executes similarity search and assembles
// token-budgeted context strings for a downstream generator.
type RetrievalService interface {
	// RetrieveContext embeds the query, searches all embedded chunks in
	// the category (optionally restricted to opts.DocumentIDs) and
	// returns at most opts.TopK chunks with similarity at or above the
	// threshold, ordered descending. An empty pool yields an empty
	// result, not an error.
	RetrieveContext(ctx context.Context, categoryID, query string, opts domain.RetrievalOptions) ([]domain.RetrievedChunk, error)

	// FormatContextForPrompt renders chunks into a single context
	// string bounded by the configured token budget. Truncation is
	// chunk-granular: the first chunk that would exceed the budget and
	// everything after it are dropped.
	FormatContextForPrompt(chunks []domain.RetrievedChunk, includeMetadata bool) string

	// BuildGenerationPromptContext composes the formatted chunk context
	// with optional few-shot exemplars, quality criteria and target
	// taxonomy levels. Sections with absent input are omitted entirely.
	BuildGenerationPromptContext(chunks []domain.RetrievedChunk, examples []domain.FewShotExample, criteria *domain.QualityCriteria, bloomTargets []string) string

	// GetContextWithConcepts retrieves chunks once per topic, then
	// deduplicates and re-sorts the union for balanced coverage across
	// several named topics.
	GetContextWithConcepts(ctx context.Context, categoryID string, topics []string, documentIDs []string, chunksPerTopic int) (*ConceptContext, error)

	// InvalidateCache evicts cached retrieval results, either for one
	// category or (empty categoryID) for everything.
	InvalidateCache(categoryID string)
}
