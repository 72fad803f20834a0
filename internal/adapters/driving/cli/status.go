package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revisely/corpus/internal/core/domain"
)

var statusCategory string

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show document pipeline status",
	Long: `Shows segmentation and embedding progress. With a document id,
prints that document's chunks; with --category, lists every document in
the category.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusCategory, "category", "c", "", "list all documents in this category")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if chunkStore == nil {
		return errors.New("store not configured")
	}

	ctx := cmd.Context()

	if len(args) == 1 {
		return statusDocument(cmd, args[0])
	}
	if statusCategory == "" {
		return errors.New("provide a document id or --category")
	}

	docs, err := chunkStore.ListDocuments(ctx, statusCategory)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	for _, doc := range docs {
		cmd.Printf("%s  %-30s  %s  %d chunks\n", doc.ID, doc.Title, doc.ChunkingStatus, doc.TotalChunks)
	}
	return nil
}

func statusDocument(cmd *cobra.Command, docID string) error {
	ctx := cmd.Context()

	doc, err := chunkStore.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("getting document: %w", err)
	}

	cmd.Printf("Document: %s\n", doc.Title)
	cmd.Printf("Category: %s\n", doc.CategoryID)
	cmd.Printf("Chunking: %s\n", doc.ChunkingStatus)
	if doc.EmbeddingProvider != "" {
		cmd.Printf("Embedding: %s (%d dimensions)\n", doc.EmbeddingProvider, doc.EmbeddingDimension)
	}
	cmd.Printf("Chunks: %d (%d tokens)\n", doc.TotalChunks, doc.TotalTokens)

	if doc.ChunkingStatus != domain.ChunkingComplete {
		return nil
	}

	chunks, err := chunkStore.GetChunks(ctx, docID)
	if err != nil {
		return fmt.Errorf("getting chunks: %w", err)
	}

	counts := map[domain.EmbeddingStatus]int{}
	for _, chunk := range chunks {
		counts[chunk.EmbeddingStatus]++
	}
	cmd.Printf("Embedding status: %d complete, %d pending, %d failed\n",
		counts[domain.EmbeddingComplete], counts[domain.EmbeddingPending], counts[domain.EmbeddingFailed])

	cmd.Println()
	for _, chunk := range chunks {
		topic := chunk.PrimaryTopic
		if topic == "" {
			topic = chunk.SectionTitle
		}
		cmd.Printf("  [%d] %s  %d tokens  %s\n", chunk.Index, chunk.EmbeddingStatus, chunk.TokenCount, topic)
	}
	return nil
}
