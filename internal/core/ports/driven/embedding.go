package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Concrete providers differ in output dimensionality (observed families:
// 1536-dim and 1024-dim) and per-call input limits, but share this
// interface. Texts longer than MaxInputChars must be truncated by the
// caller before the call; truncation is a documented lossy step, not an
// error.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	// This is more efficient than calling Embed in a loop for large batches.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 1024, 1536).
	Dimensions() int

	// MaxInputChars returns the provider's per-text character ceiling.
	MaxInputChars() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight
	// test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
