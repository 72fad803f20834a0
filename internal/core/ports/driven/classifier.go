package driven

import (
	"context"

	"github.com/revisely/corpus/internal/core/domain"
)

// TopicClassifier extracts topic metadata from text excerpts by
// delegating to a generative text provider.
//
// Implementations must tolerate malformed provider output (e.g. non-JSON
// completions) by returning an empty TopicInfo rather than an error, so
// unvalidated provider output never flows past the adapter boundary.
type TopicClassifier interface {
	// Classify extracts topics, a primary topic and key concepts from
	// the given text.
	Classify(ctx context.Context, text string) (domain.TopicInfo, error)

	// SummariseTopic returns a short topic label for the text, at most
	// maxWords words.
	SummariseTopic(ctx context.Context, text string, maxWords int) (string, error)

	// ModelName returns the name of the underlying model.
	ModelName() string

	// Close releases resources.
	Close() error
}
