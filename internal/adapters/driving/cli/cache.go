package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var cacheAll bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the retrieval cache",
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate [category]",
	Short: "Evict cached retrieval results",
	Long: `Evicts cached retrieval results for a category, or everything
with --all. Run after ingesting or re-segmenting documents.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheInvalidate,
}

func init() {
	cacheInvalidateCmd.Flags().BoolVar(&cacheAll, "all", false, "evict every cached entry")
	cacheCmd.AddCommand(cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	if cacheAll {
		retrievalService.InvalidateCache("")
		cmd.Println("Cache cleared.")
		return nil
	}
	if len(args) == 0 {
		return errors.New("provide a category or --all")
	}

	retrievalService.InvalidateCache(args[0])
	cmd.Printf("Cache invalidated for category %s.\n", args[0])
	return nil
}
