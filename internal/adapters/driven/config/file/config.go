// Package file provides TOML-backed configuration for the pipeline:
// which providers to use, their credentials, and the segmentation and
// retrieval tunables.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Provider identifiers accepted in the [embedding] and [classifier]
// sections.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config is the on-disk configuration, stored as TOML.
type Config struct {
	// DataDir is where the SQLite database lives. Empty means the
	// default under the user's home directory.
	DataDir string `toml:"data_dir,omitempty"`

	Embedding    EmbeddingConfig    `toml:"embedding"`
	Classifier   ClassifierConfig   `toml:"classifier"`
	Segmentation SegmentationConfig `toml:"segmentation"`
	Retrieval    RetrievalConfig    `toml:"retrieval"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	BaseURL    string `toml:"base_url,omitempty"`
	Dimensions int    `toml:"dimensions,omitempty"`
}

// ClassifierConfig selects and configures the topic classifier.
type ClassifierConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
}

// SegmentationConfig holds chunking tunables.
type SegmentationConfig struct {
	TargetChunkTokens int `toml:"target_chunk_tokens,omitempty"`
	MaxChunkTokens    int `toml:"max_chunk_tokens,omitempty"`
	OverlapTokens     int `toml:"overlap_tokens,omitempty"`
}

// RetrievalConfig holds search tunables.
type RetrievalConfig struct {
	TopK                int     `toml:"top_k,omitempty"`
	SimilarityThreshold float64 `toml:"similarity_threshold,omitempty"`
	ContextTokenBudget  int     `toml:"context_token_budget,omitempty"`
}

// Default returns a config with the ollama providers selected, which
// work without credentials.
func Default() Config {
	return Config{
		Embedding:  EmbeddingConfig{Provider: ProviderOllama},
		Classifier: ClassifierConfig{Provider: ProviderOllama},
	}
}

// Store loads and saves the config file.
type Store struct {
	filePath string
}

// NewStore creates a config store. If configDir is empty, defaults to
// ~/.corpus/config.toml.
func NewStore(configDir string) (*Store, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".corpus")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	return &Store{
		filePath: filepath.Join(configDir, "config.toml"),
	}, nil
}

// Load reads the config file. A missing file yields the defaults, not
// an error.
func (s *Store) Load() (Config, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save persists the config with restricted permissions, since it may
// hold API keys.
func (s *Store) Save(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Path returns the configuration file path.
func (s *Store) Path() string {
	return s.filePath
}

func (c Config) validate() error {
	if err := validProvider(c.Embedding.Provider); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := validProvider(c.Classifier.Provider); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding: openai provider requires api_key")
	}
	if c.Classifier.Provider == ProviderOpenAI && c.Classifier.APIKey == "" {
		return fmt.Errorf("classifier: openai provider requires api_key")
	}
	return nil
}

func validProvider(name string) error {
	switch name {
	case ProviderOpenAI, ProviderOllama:
		return nil
	default:
		return fmt.Errorf("unknown provider %q", name)
	}
}
