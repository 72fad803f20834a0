package domain

// Retrieval defaults.
const (
	DefaultTopK                = 20
	DefaultSimilarityThreshold = 0.3
	DefaultChunksPerTopic      = 5
)

// RetrievalOptions configures a similarity search.
type RetrievalOptions struct {
	// TopK is the maximum number of chunks to return (default 20).
	TopK int

	// SimilarityThreshold drops results below this similarity.
	// The zero value means the default of 0.3.
	SimilarityThreshold float64

	// DocumentIDs optionally restricts the search to a document subset.
	DocumentIDs []string

	// BypassCache skips the result cache for this call.
	BypassCache bool
}

// FewShotExample is an exemplar question/answer pair shown to the
// downstream generator alongside retrieved context.
type FewShotExample struct {
	Question string
	Answer   string
	Score    float64
}

// QualityCriteria describes the scoring weights and acceptance threshold
// the generator should aim for.
type QualityCriteria struct {
	Weights  map[string]float64
	MinScore float64
}
