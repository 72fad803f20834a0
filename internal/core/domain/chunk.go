package domain

// OverlapMarker prefixes overlap text carried from the previous chunk.
const OverlapMarker = "[...] "

// Chunk is a contiguous, token-budgeted slice of a document's text,
// tagged with topic metadata and (eventually) an embedding vector.
// Chunks are uniquely identified by (DocumentID, Index).
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Index is the zero-based position among the document's chunks in
	// original-text order.
	Index int

	// Content is the chunk text. Every chunk except the first carries a
	// short OverlapMarker-prefixed tail of the previous chunk.
	Content string

	// TokenCount is the estimated token count of Content, overlap included.
	TokenCount int

	// StartChar and EndChar are byte offsets of the non-overlap content
	// into the original document text. StartChar is non-decreasing across
	// Index; spans may overlap by the overlap window.
	StartChar int
	EndChar   int

	// SectionTitle is the topic label of the segment this chunk belongs to.
	SectionTitle string

	// PageNumbers lists the originating page indices.
	PageNumbers []int

	// Topics, PrimaryTopic and KeyConcepts come from per-chunk
	// classification. They default to empty when classification fails.
	Topics       []string
	PrimaryTopic string
	KeyConcepts  []string

	// EmbeddingStatus is pending until the indexer embeds the chunk.
	EmbeddingStatus EmbeddingStatus

	// Embedding is the vector representation, set once status is complete.
	Embedding []float32
}

// TopicInfo is the normalised result of classifying a text excerpt.
type TopicInfo struct {
	Topics       []string `json:"topics"`
	PrimaryTopic string   `json:"primary_topic"`
	KeyConcepts  []string `json:"key_concepts"`
}

// RetrievedChunk pairs a chunk with its similarity to a query.
type RetrievedChunk struct {
	Chunk Chunk

	// Similarity is 1 - cosine distance, in [-1, 1].
	Similarity float64
}
