package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revisely/corpus/internal/core/domain"
)

func TestStatusCmd_RequiresIDOrCategory(t *testing.T) {
	_, _, _, _, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"status"})

	err := rootCmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "document id or --category")
}

func TestStatusCmd_ListsCategory(t *testing.T) {
	store, _, _, _, cleanup := setupTestServices()
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{
		ID: "doc-1", CategoryID: "biology", Title: "Cells",
	}))
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{
		ID: "doc-2", CategoryID: "biology", Title: "Genetics",
	}))

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status", "--category", "biology"})
	defer func() {
		statusCategory = ""
	}()

	err := rootCmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Cells")
	assert.Contains(t, buf.String(), "Genetics")
	assert.Contains(t, buf.String(), "pending")
}

func TestStatusCmd_ShowsDocument(t *testing.T) {
	store, _, _, _, cleanup := setupTestServices()
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{
		ID: "doc-1", CategoryID: "biology", Title: "Cells",
	}))
	chunks := []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Index: 0, TokenCount: 900,
			PrimaryTopic: "Cell Structure", EmbeddingStatus: domain.EmbeddingComplete},
		{ID: "c2", DocumentID: "doc-1", Index: 1, TokenCount: 800,
			PrimaryTopic: "Osmosis", EmbeddingStatus: domain.EmbeddingPending},
	}
	require.NoError(t, store.ReplaceChunks(ctx, "doc-1", chunks, nil, nil))

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status", "doc-1"})

	err := rootCmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Document: Cells")
	assert.Contains(t, buf.String(), "1 complete, 1 pending, 0 failed")
	assert.Contains(t, buf.String(), "Cell Structure")
	assert.Contains(t, buf.String(), "Osmosis")
}

func TestStatusCmd_UnknownDocument(t *testing.T) {
	_, _, _, _, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"status", "missing"})

	err := rootCmd.Execute()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
