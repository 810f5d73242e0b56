package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/store"
)

func newTestManager(t *testing.T, embedder Embedder) *Manager {
	t.Helper()
	worker, err := store.NewWorker(config.StoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	worker.Start()
	t.Cleanup(worker.Stop)
	return NewManager(worker, embedder)
}

func TestRememberAndRecall(t *testing.T) {
	manager := newTestManager(t, nil)
	ctx := context.Background()

	require.NoError(t, manager.Remember(ctx, store.MemoryEntry{
		UserID: "u1", Namespace: "prefs", Key: "city", Value: "Oslo",
	}))
	require.NoError(t, manager.Remember(ctx, store.MemoryEntry{
		UserID: "u1", Key: "diet", Value: "vegetarian",
	}))

	entries, err := manager.Recall("u1", "prefs")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Oslo", entries[0].Value)

	// Entries without a namespace land in "default".
	entries, err = manager.Recall("u1", "default")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vegetarian", entries[0].Value)
}

func TestRememberValidatesInput(t *testing.T) {
	manager := newTestManager(t, nil)
	ctx := context.Background()

	assert.Error(t, manager.Remember(ctx, store.MemoryEntry{Key: "city", Value: "Oslo"}))
	assert.Error(t, manager.Remember(ctx, store.MemoryEntry{UserID: "u1", Key: "city", Value: "  "}))
}

func TestSearchFallsBackWithoutEmbedder(t *testing.T) {
	manager := newTestManager(t, nil)
	ctx := context.Background()

	require.NoError(t, manager.Remember(ctx, store.MemoryEntry{
		UserID: "u1", Key: "city", Value: "lives in Oslo",
	}))

	entries, err := manager.Search(ctx, "u1", "oslo")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lives in Oslo", entries[0].Value)

	entries, err = manager.Search(ctx, "u2", "oslo")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPromptBlock(t *testing.T) {
	manager := newTestManager(t, nil)
	ctx := context.Background()

	assert.Empty(t, manager.PromptBlock("u1"))

	require.NoError(t, manager.Remember(ctx, store.MemoryEntry{
		UserID: "u1", Key: "city", Value: "Oslo",
	}))
	require.NoError(t, manager.Remember(ctx, store.MemoryEntry{
		UserID: "u1", Value: "prefers short answers",
	}))

	block := manager.PromptBlock("u1")
	assert.Contains(t, block, "What you remember about this user:")
	assert.Contains(t, block, "- city: Oslo")
	assert.Contains(t, block, "- prefers short answers")
}
