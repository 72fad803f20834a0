// Package cli implements the corpus command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revisely/corpus/internal/adapters/driven/cache"
	olclassifier "github.com/revisely/corpus/internal/adapters/driven/classifier/ollama"
	oaclassifier "github.com/revisely/corpus/internal/adapters/driven/classifier/openai"
	"github.com/revisely/corpus/internal/adapters/driven/config/file"
	olembedding "github.com/revisely/corpus/internal/adapters/driven/embedding/ollama"
	oaembedding "github.com/revisely/corpus/internal/adapters/driven/embedding/openai"
	"github.com/revisely/corpus/internal/adapters/driven/storage/sqlite"
	"github.com/revisely/corpus/internal/core/ports/driven"
	"github.com/revisely/corpus/internal/core/ports/driving"
	"github.com/revisely/corpus/internal/core/services"
	"github.com/revisely/corpus/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// Persistent flags.
var (
	flagVerbose   bool
	flagDataDir   string
	flagConfigDir string
)

// Services wired on first command run. Commands guard against nil so
// tests can substitute mocks instead.
var (
	chunkStore       driven.ChunkStore
	segmenterService driving.DocumentSegmenter
	indexerService   driving.EmbeddingIndexer
	retrievalService driving.RetrievalService

	closeServices func()
)

var rootCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Segment, embed and search study documents",
	Long: `corpus ingests study documents, segments them into topically
coherent chunks, embeds the chunks, and retrieves relevant context for
question generation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(flagVerbose)

		// Tests wire mocks before running; don't overwrite them.
		if chunkStore != nil || retrievalService != nil {
			return nil
		}
		switch cmd.Name() {
		case "version", "help", "completion":
			return nil
		}

		closer, err := buildServices()
		if err != nil {
			return err
		}
		closeServices = closer
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default ~/.corpus/data)")
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "config directory (default ~/.corpus)")
}

// Execute runs the root command, wiring services from configuration on
// first use.
func Execute() error {
	defer func() {
		if closeServices != nil {
			closeServices()
		}
	}()

	return rootCmd.Execute()
}

// buildServices constructs the store, providers and core services from
// the config file. Returns a cleanup function.
func buildServices() (func(), error) {
	cfgStore, err := file.NewStore(flagConfigDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	cfg, err := cfgStore.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dataDir := flagDataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		store.Close()
		return nil, err
	}
	classifier, err := buildClassifier(cfg.Classifier)
	if err != nil {
		store.Close()
		return nil, err
	}

	chunkStore = store
	segmenterService = services.NewSegmenter(store, classifier, nil, services.SegmenterConfig{
		TargetChunkTokens: cfg.Segmentation.TargetChunkTokens,
		MaxChunkTokens:    cfg.Segmentation.MaxChunkTokens,
		OverlapTokens:     cfg.Segmentation.OverlapTokens,
	})
	indexerService = services.NewIndexer(store, embedder, 0)
	retrievalService = services.NewRetriever(store, embedder, cache.NewMemory(), nil, services.RetrieverConfig{
		ContextTokenBudget: cfg.Retrieval.ContextTokenBudget,
	})

	return func() {
		embedder.Close()
		classifier.Close()
		store.Close()
	}, nil
}

func buildEmbedder(cfg file.EmbeddingConfig) (driven.EmbeddingService, error) {
	switch cfg.Provider {
	case file.ProviderOpenAI:
		return oaembedding.NewEmbeddingService(oaembedding.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case file.ProviderOllama:
		return olembedding.NewEmbeddingService(olembedding.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func buildClassifier(cfg file.ClassifierConfig) (driven.TopicClassifier, error) {
	switch cfg.Provider {
	case file.ProviderOpenAI:
		return oaclassifier.NewClassifier(oaclassifier.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case file.ProviderOllama:
		return olclassifier.NewClassifier(olclassifier.Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}
