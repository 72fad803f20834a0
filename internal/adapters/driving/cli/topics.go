package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var topicsConcepts bool

var topicsCmd = &cobra.Command{
	Use:   "topics [document-id]",
	Short: "Show a document's topic segments",
	Args:  cobra.ExactArgs(1),
	RunE:  runTopics,
}

func init() {
	topicsCmd.Flags().BoolVar(&topicsConcepts, "concepts", false, "also print the concept map")
	rootCmd.AddCommand(topicsCmd)
}

func runTopics(cmd *cobra.Command, args []string) error {
	if chunkStore == nil {
		return errors.New("store not configured")
	}

	ctx := cmd.Context()
	docID := args[0]

	topics, err := chunkStore.GetTopics(ctx, docID)
	if err != nil {
		return fmt.Errorf("getting topics: %w", err)
	}
	if len(topics) == 0 {
		cmd.Println("No topics found. Has the document been segmented?")
		return nil
	}

	for _, topic := range topics {
		cmd.Printf("%s  [%d:%d]  %d chunks\n", topic.Name, topic.StartChar, topic.EndChar, len(topic.ChunkIDs))
		if len(topic.KeyConcepts) > 0 {
			cmd.Printf("    concepts: %s\n", strings.Join(topic.KeyConcepts, ", "))
		}
	}

	if !topicsConcepts {
		return nil
	}

	conceptMap, err := chunkStore.GetConceptMap(ctx, docID)
	if err != nil {
		return fmt.Errorf("getting concept map: %w", err)
	}

	cmd.Printf("\nConcept map (%d concepts, %d relationships):\n",
		conceptMap.TotalConcepts, conceptMap.TotalRelationships)

	names := make([]string, 0, len(conceptMap.Entries))
	for name := range conceptMap.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := conceptMap.Entries[name]
		cmd.Printf("  %s (%d chunks)", name, len(entry.ChunkIDs))
		if len(entry.Related) > 0 {
			cmd.Printf("  -> %s", strings.Join(entry.Related, ", "))
		}
		cmd.Println()
	}
	return nil
}
