// Package ollama provides a topic classifier using a local Ollama model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driven"
)

// Ensure Classifier implements the interface.
var _ driven.TopicClassifier = (*Classifier)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the Ollama classifier.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the model to use (default: llama3.2).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Classifier extracts topic metadata using the Ollama generate API.
type Classifier struct {
	client  *http.Client
	baseURL string
	model   string
}

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

// options holds generation parameters.
type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// generateResponse is the Ollama /api/generate response format.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

const classifyPrompt = `Analyse this study material excerpt and extract its topics.

Respond with ONLY a JSON object in this exact shape:
{"topics": ["..."], "primary_topic": "...", "key_concepts": ["..."]}

Excerpt:
%s`

const summarisePrompt = `Give a topic label of at most %d words for this study material excerpt.
Respond with ONLY the label, no punctuation or explanation.

Excerpt:
%s`

// NewClassifier creates a new Ollama topic classifier.
func NewClassifier(cfg Config) *Classifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Classifier{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

// Classify extracts topics, a primary topic and key concepts from the
// given text. Malformed model output yields an empty TopicInfo, not an
// error.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.TopicInfo, error) {
	content, err := c.generate(ctx, fmt.Sprintf(classifyPrompt, text), 300)
	if err != nil {
		return domain.TopicInfo{}, fmt.Errorf("classify: %w", err)
	}

	return parseTopicInfo(content), nil
}

// SummariseTopic returns a short topic label for the text.
func (c *Classifier) SummariseTopic(ctx context.Context, text string, maxWords int) (string, error) {
	content, err := c.generate(ctx, fmt.Sprintf(summarisePrompt, maxWords, text), 30)
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
	// HTTP client doesn't need explicit cleanup
	return nil
}

func (c *Classifier) generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: &options{
			NumPredict:  maxTokens,
			Temperature: 0.2,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/api/generate",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return genResp.Response, nil
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
