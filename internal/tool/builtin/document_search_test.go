package builtin

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/retriever"
	toolcore "github.com/sentinelworks/sentinel/internal/tool"
)

// fixedEmbedder derives a deterministic unit vector from the text so
// similarity search behaves consistently without a real model.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float64, 8)
	for i, r := range text {
		vec[i%8] += float64(r)
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, 8)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func TestDocumentSearchScopesToInvocationThread(t *testing.T) {
	registry, err := retriever.NewRegistry(fixedEmbedder{}, config.RetrieverConfig{ChunkSize: 200, ChunkOverlap: 40, TopK: 2})
	require.NoError(t, err)

	_, err = registry.Ingest(context.Background(), "thread-a", retriever.Document{
		Filename: "notes.txt",
		Text:     "The quarterly report shows revenue grew by twelve percent.",
	})
	require.NoError(t, err)

	tool := NewDocumentSearchTool(registry)
	input := json.RawMessage(`{"query":"revenue"}`)

	result, err := tool.Execute(context.Background(), toolcore.Invocation{ThreadID: "thread-a", UserID: "u1"}, input)
	require.NoError(t, err)
	require.Equal(t, toolcore.KindStructured, result.Kind)
	value, ok := result.Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "notes.txt", value["filename"])

	// Another thread's invocation never sees thread-a's document.
	result, err = tool.Execute(context.Background(), toolcore.Invocation{ThreadID: "thread-b"}, input)
	require.NoError(t, err)
	assert.Equal(t, toolcore.KindText, result.Kind)
	assert.Contains(t, result.Text, "No document")
}

func TestDocumentSearchRequiresBoundThread(t *testing.T) {
	registry, err := retriever.NewRegistry(fixedEmbedder{}, config.RetrieverConfig{})
	require.NoError(t, err)

	tool := NewDocumentSearchTool(registry)

	_, err = tool.Execute(context.Background(), toolcore.Invocation{}, json.RawMessage(`{"query":"anything"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conversation bound")
}
