package domain

// MaxRelatedConcepts caps the related list of a concept map entry.
const MaxRelatedConcepts = 10

// ConceptEntry records where a concept occurs and what it co-occurs with.
type ConceptEntry struct {
	// ChunkIDs is the set of chunk ids whose topics or key concepts
	// contain this concept.
	ChunkIDs []string

	// Related lists other concepts appearing in any of the same chunks,
	// capped at MaxRelatedConcepts. Never includes the concept itself.
	Related []string
}

// ConceptMap is the cross-chunk concept graph for one document, keyed by
// lower-cased concept/topic string. It is rebuilt wholesale on each
// segmentation run, never merged incrementally.
type ConceptMap struct {
	DocumentID string
	Entries    map[string]ConceptEntry

	// TotalConcepts and TotalRelationships are denormalised counters
	// kept for observability.
	TotalConcepts      int
	TotalRelationships int
}
