// Package openai provides a topic classifier backed by the OpenAI chat API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driven"
)

// Ensure Classifier implements the interface.
var _ driven.TopicClassifier = (*Classifier)(nil)

// Default configuration values.
const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second

	// DefaultRequestsPerMinute paces classification during segmentation,
	// which issues one call per chunk plus two per page edge.
	DefaultRequestsPerMinute = 200
)

// Config holds configuration for the OpenAI classifier.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API base URL for compatible providers.
	BaseURL string

	// Model is the chat model to use (default: gpt-4o-mini).
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// RequestsPerMinute caps the request rate (default: 200).
	RequestsPerMinute int
}

// Classifier extracts topic metadata using OpenAI chat completions.
type Classifier struct {
	client  *gopenai.Client
	limiter *rate.Limiter
	model   string
}

const classifyPrompt = `Analyse this study material excerpt and extract its topics.

Respond with ONLY a JSON object in this exact shape:
{"topics": ["..."], "primary_topic": "...", "key_concepts": ["..."]}

topics: the subject areas covered, most significant first.
primary_topic: the single dominant subject.
key_concepts: specific terms, names or ideas a student should learn from this excerpt.

Excerpt:
%s`

const summarisePrompt = `Give a topic label of at most %d words for this study material excerpt.
Respond with ONLY the label, no punctuation or explanation.

Excerpt:
%s`

// NewClassifier creates a new OpenAI topic classifier.
func NewClassifier(cfg Config) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}

	clientCfg := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Classifier{
		client:  gopenai.NewClientWithConfig(clientCfg),
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		model:   cfg.Model,
	}, nil
}

// Classify extracts topics, a primary topic and key concepts from the
// given text. Malformed model output yields an empty TopicInfo, not an
// error.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.TopicInfo, error) {
	content, err := c.complete(ctx, fmt.Sprintf(classifyPrompt, text), 300)
	if err != nil {
		return domain.TopicInfo{}, fmt.Errorf("classify: %w", err)
	}

	return parseTopicInfo(content), nil
}

// SummariseTopic returns a short topic label for the text.
func (c *Classifier) SummariseTopic(ctx context.Context, text string, maxWords int) (string, error) {
	content, err := c.complete(ctx, fmt.Sprintf(summarisePrompt, maxWords, text), 30)
	if err != nil {
		return "", fmt.Errorf("summarise topic: %w", err)
	}

	label := strings.TrimSpace(content)
	words := strings.Fields(label)
	if len(words) > maxWords {
		label = strings.Join(words[:maxWords], " ")
	}
	return label, nil
}

// ModelName returns the name of the underlying model.
func (c *Classifier) ModelName() string {
	return c.model
}

// Close releases resources.
func (c *Classifier) Close() error {
	return nil
}

func (c *Classifier) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: 0.2,
		Messages: []gopenai.ChatCompletionMessage{
			{
				Role:    gopenai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrClassifierUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion returned", domain.ErrClassifierUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// parseTopicInfo extracts a TopicInfo from model output, tolerating
// code fences and surrounding prose. Anything unparseable produces the
// zero value.
func parseTopicInfo(content string) domain.TopicInfo {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return domain.TopicInfo{}
	}

	var info domain.TopicInfo
	if err := json.Unmarshal([]byte(content[start:end+1]), &info); err != nil {
		return domain.TopicInfo{}
	}
	return info
}
