package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sentinelworks/sentinel/internal/retriever"
	toolcore "github.com/sentinelworks/sentinel/internal/tool"
)

const noDocumentMessage = "No document has been uploaded for this conversation. " +
	"Ask the user to upload a document before searching it."

// DocumentSearchTool retrieves relevant passages from the document
// indexed for the current conversation. The thread id comes from the
// invocation; the tool never reaches across threads.
type DocumentSearchTool struct {
	registry *retriever.Registry
}

func NewDocumentSearchTool(registry *retriever.Registry) *DocumentSearchTool {
	return &DocumentSearchTool{registry: registry}
}

func (t *DocumentSearchTool) Name() string {
	return "document_search"
}

func (t *DocumentSearchTool) Description() string {
	return "Search the document uploaded for this conversation and return relevant passages."
}

func (t *DocumentSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to look for in the uploaded document",
			},
		},
		"required": []string{"query"},
	}
}

func (t *DocumentSearchTool) Execute(ctx context.Context, inv toolcore.Invocation, input json.RawMessage) (toolcore.Result, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolcore.Result{}, fmt.Errorf("invalid input: %w", err)
	}

	query := strings.TrimSpace(args.Query)
	if query == "" {
		return toolcore.Result{}, fmt.Errorf("query is required")
	}

	if inv.ThreadID == "" {
		return toolcore.Result{}, fmt.Errorf("no conversation bound to this call")
	}

	result, err := t.registry.Query(ctx, inv.ThreadID, query)
	if err != nil {
		return toolcore.Result{}, err
	}
	if !result.Found {
		return toolcore.TextResult(noDocumentMessage), nil
	}

	return toolcore.StructuredResult(map[string]interface{}{
		"filename": result.Filename,
		"passages": result.Chunks,
	}), nil
}
