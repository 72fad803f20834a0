package services

import (
	"context"
	"strings"

	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driven"
)

// --- Mock implementations ---

// labelRule maps a lower-cased keyword to the topic label returned for
// excerpts containing it.
type labelRule struct {
	keyword string
	label   string
}

// mockClassifier implements driven.TopicClassifier with deterministic
// keyword-driven labels. Excerpts are labelled by the first matching
// rule, in declaration order.
type mockClassifier struct {
	labels []labelRule

	// summariseErr makes SummariseTopic fail.
	summariseErr error

	// classifyErr makes Classify fail.
	classifyErr error

	classifyCalls  int
	summariseCalls int
}

var _ driven.TopicClassifier = (*mockClassifier)(nil)

func (m *mockClassifier) labelOf(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range m.labels {
		if strings.Contains(lower, rule.keyword) {
			return rule.label
		}
	}
	return "General"
}

func (m *mockClassifier) Classify(_ context.Context, text string) (domain.TopicInfo, error) {
	m.classifyCalls++
	if m.classifyErr != nil {
		return domain.TopicInfo{}, m.classifyErr
	}
	label := m.labelOf(text)
	return domain.TopicInfo{
		Topics:       []string{label},
		PrimaryTopic: label,
		KeyConcepts:  []string{strings.ToLower(label), "energy"},
	}, nil
}

func (m *mockClassifier) SummariseTopic(_ context.Context, text string, _ int) (string, error) {
	m.summariseCalls++
	if m.summariseErr != nil {
		return "", m.summariseErr
	}
	return m.labelOf(text), nil
}

func (m *mockClassifier) ModelName() string { return "mock-classifier" }
func (m *mockClassifier) Close() error      { return nil }

// mockEmbedder implements driven.EmbeddingService with fixed-dimension
// deterministic vectors.
type mockEmbedder struct {
	dims     int
	maxChars int

	// queryVec overrides the vector returned by Embed. queryVecs takes
	// precedence for exact-text matches.
	queryVec  []float32
	queryVecs map[string][]float32

	// failBatch makes the Nth EmbedBatch call fail (0-based, -1 never).
	failBatch int

	embedCalls int
	batchCalls int
	batchSizes []int
	batchTexts [][]string
}

var _ driven.EmbeddingService = (*mockEmbedder)(nil)

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims, maxChars: 32000, failBatch: -1}
}

func (m *mockEmbedder) vectorFor(text string) []float32 {
	v := make([]float32, m.dims)
	for i, r := range text {
		v[i%m.dims] += float32(r % 13)
	}
	return v
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls++
	if vec, ok := m.queryVecs[text]; ok {
		return vec, nil
	}
	if m.queryVec != nil {
		return m.queryVec, nil
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	call := m.batchCalls
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	m.batchTexts = append(m.batchTexts, texts)
	if call == m.failBatch {
		return nil, context.DeadlineExceeded
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.vectorFor(text)
	}
	return vectors, nil
}

func (m *mockEmbedder) Dimensions() int             { return m.dims }
func (m *mockEmbedder) MaxInputChars() int          { return m.maxChars }
func (m *mockEmbedder) ModelName() string           { return "mock-embedder" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                { return nil }
