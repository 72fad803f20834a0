package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/revisely/corpus/internal/core/domain"
)

var (
	ingestCategory  string
	ingestTitle     string
	ingestID        string
	ingestSkipEmbed bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a study document",
	Long: `Reads a plain-text study document, segments it into topically
coherent chunks, and embeds the chunks for retrieval.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestCategory, "category", "c", "", "category the document belongs to (required)")
	ingestCmd.Flags().StringVarP(&ingestTitle, "title", "t", "", "document title (default: file name)")
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document id (default: generated)")
	ingestCmd.Flags().BoolVar(&ingestSkipEmbed, "skip-embed", false, "segment only, leave chunks pending")
	_ = ingestCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if chunkStore == nil || segmenterService == nil {
		return errors.New("ingest services not configured")
	}

	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	title := ingestTitle
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	docID := ingestID
	if docID == "" {
		docID = uuid.NewString()
	}

	ctx := cmd.Context()
	doc := &domain.Document{
		ID:         docID,
		CategoryID: ingestCategory,
		Title:      title,
		Content:    string(content),
	}
	if err := chunkStore.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	cmd.Printf("Saved document %s (%d chars)\n", docID, len(doc.Content))

	if err := segmenterService.SegmentDocument(ctx, docID); err != nil {
		return fmt.Errorf("segmenting document: %w", err)
	}

	saved, err := chunkStore.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("reading document back: %w", err)
	}
	cmd.Printf("Segmented into %d chunks (%d tokens)\n", saved.TotalChunks, saved.TotalTokens)

	if ingestSkipEmbed {
		return nil
	}
	if indexerService == nil {
		return errors.New("indexer service not configured")
	}

	embedded, err := indexerService.EmbedDocumentChunks(ctx, docID)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}
	cmd.Printf("Embedded %d chunks\n", embedded)

	if retrievalService != nil {
		retrievalService.InvalidateCache(ingestCategory)
	}
	return nil
}
