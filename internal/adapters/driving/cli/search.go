package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revisely/corpus/internal/core/domain"
)

var (
	searchCategory  string
	searchLimit     int
	searchDocuments []string
	searchJSON      bool
	searchNoCache   bool
	searchContext   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search embedded chunks",
	Long: `Embeds the query and ranks the category's chunks by cosine
similarity, returning the most relevant ones.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "category to search in (required)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", domain.DefaultTopK, "maximum number of results")
	searchCmd.Flags().StringSliceVar(&searchDocuments, "document", nil, "restrict to these document ids")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchNoCache, "no-cache", false, "bypass the retrieval cache")
	searchCmd.Flags().BoolVar(&searchContext, "context", false, "print the formatted prompt context instead of a result list")
	_ = searchCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	results, err := retrievalService.RetrieveContext(cmd.Context(), searchCategory, query, domain.RetrievalOptions{
		TopK:        searchLimit,
		DocumentIDs: searchDocuments,
		BypassCache: searchNoCache,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchContext {
		cmd.Println(retrievalService.FormatContextForPrompt(results, true))
		return nil
	}
	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.RetrievedChunk) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.RetrievedChunk) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, result := range results {
		topic := result.Chunk.PrimaryTopic
		if topic == "" {
			topic = result.Chunk.SectionTitle
		}

		cmd.Printf("  [%d] %s (%.2f)\n", i+1, topic, result.Similarity)
		cmd.Printf("      Document: %s, chunk %d\n", result.Chunk.DocumentID, result.Chunk.Index)
		cmd.Printf("      %s\n", snippet(result.Chunk.Content, 120))
		cmd.Println()
	}
	return nil
}

// snippet returns the first n characters of text on a single line.
func snippet(text string, n int) string {
	out := make([]rune, 0, n)
	for _, r := range text {
		if len(out) >= n {
			return string(out) + "..."
		}
		if r == '\n' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}
