package driven

import "github.com/revisely/corpus/internal/core/domain"

// ContextCache memoises retrieval results. It is a performance
// optimisation, never a source of truth: entries have no TTL and are
// evicted only by explicit invalidation. Implementations must be safe
// for concurrent use.
type ContextCache interface {
	// Get returns the cached result for key, if present.
	Get(key string) ([]domain.RetrievedChunk, bool)

	// Put stores a result under key. Entries are immutable once written;
	// overwrites carry equivalent values.
	Put(key string, chunks []domain.RetrievedChunk)

	// InvalidatePrefix evicts every entry whose key starts with prefix.
	// Keys are prefixed with the category id, so passing a category id
	// scopes invalidation to that category.
	InvalidatePrefix(prefix string)

	// Clear evicts everything.
	Clear()
}
