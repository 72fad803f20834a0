package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestIngestCmd_Use(t *testing.T) {
	assert.Equal(t, "ingest [file]", ingestCmd.Use)
}

func TestIngestCmd_SegmentsAndEmbeds(t *testing.T) {
	store, retrieval, segmenter, indexer, cleanup := setupTestServices()
	defer cleanup()

	path := writeTestFile(t, "Mitochondria are the powerhouse of the cell.")

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ingest", "--category", "biology", "--id", "doc-1", path})

	err := rootCmd.Execute()
	require.NoError(t, err)

	doc, err := store.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "biology", doc.CategoryID)
	assert.Equal(t, "notes", doc.Title)

	assert.Equal(t, []string{"doc-1"}, segmenter.segmented)
	assert.Equal(t, []string{"doc-1"}, indexer.embedded)
	assert.Equal(t, []string{"biology"}, retrieval.invalidated)
	assert.Contains(t, buf.String(), "Embedded 3 chunks")
}

func TestIngestCmd_SkipEmbed(t *testing.T) {
	_, _, segmenter, indexer, cleanup := setupTestServices()
	defer cleanup()

	path := writeTestFile(t, "Some content.")

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ingest", "--category", "biology", "--id", "doc-2", "--skip-embed", path})
	defer func() {
		ingestSkipEmbed = false
	}()

	err := rootCmd.Execute()
	require.NoError(t, err)

	assert.Equal(t, []string{"doc-2"}, segmenter.segmented)
	assert.Empty(t, indexer.embedded)
}

func TestIngestCmd_TitleOverride(t *testing.T) {
	store, _, _, _, cleanup := setupTestServices()
	defer cleanup()

	path := writeTestFile(t, "Some content.")

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"ingest", "--category", "biology", "--id", "doc-3", "--title", "GCSE Biology Notes", path})
	defer func() {
		ingestTitle = ""
	}()

	err := rootCmd.Execute()
	require.NoError(t, err)

	doc, err := store.GetDocument(context.Background(), "doc-3")
	require.NoError(t, err)
	assert.Equal(t, "GCSE Biology Notes", doc.Title)
}

func TestIngestCmd_MissingFile(t *testing.T) {
	_, _, _, _, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest", "--category", "biology", "/nonexistent/file.txt"})

	err := rootCmd.Execute()
	assert.Error(t, err)
}

func TestIngestCmd_SegmentationFailure(t *testing.T) {
	_, _, segmenter, indexer, cleanup := setupTestServices()
	defer cleanup()
	segmenter.err = assert.AnError

	path := writeTestFile(t, "Some content.")

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest", "--category", "biology", path})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "segmenting document")
	assert.Empty(t, indexer.embedded)
}
