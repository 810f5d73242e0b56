package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/sentinel/internal/model/contract"
)

func TestValidateHistoryDropsEmptyToolMessages(t *testing.T) {
	history := []contract.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "calling a tool"},
		{Role: "tool", Content: "   ", ToolCallID: "call_1"},
		{Role: "tool", Content: "result", ToolCallID: "call_2"},
	}

	validated := validateHistory(history, 10)
	require.Len(t, validated, 3)
	assert.Equal(t, "result", validated[2].Content)
}

func TestValidateHistoryFlattensParts(t *testing.T) {
	history := []contract.Message{
		{Role: "user", Parts: []contract.ContentPart{
			{Type: "text", Text: "first"},
			{Type: "text", Text: "second"},
		}},
	}

	validated := validateHistory(history, 10)
	require.Len(t, validated, 1)
	assert.Equal(t, "first\nsecond", validated[0].Content)
	assert.Nil(t, validated[0].Parts)
}

func TestValidateHistoryTruncatesToLimit(t *testing.T) {
	history := make([]contract.Message, 0, 20)
	for i := 0; i < 20; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, contract.Message{Role: role, Content: "msg"})
	}

	validated := validateHistory(history, 10)
	assert.Len(t, validated, 10)
}

func TestValidateHistoryTrimsLeadingOrphanToolMessages(t *testing.T) {
	// Truncation can cut between an assistant call and its tool results;
	// the stranded tool messages must not lead the window.
	history := []contract.Message{
		{Role: "assistant", Content: "", ToolCalls: []*contract.ToolCall{{ID: "call_1", Name: "x", Input: "{}"}}},
		{Role: "tool", Content: "result 1", ToolCallID: "call_1"},
		{Role: "tool", Content: "result 2", ToolCallID: "call_2"},
		{Role: "user", Content: "next question"},
		{Role: "assistant", Content: "answer"},
	}

	validated := validateHistory(history, 4)
	require.Len(t, validated, 2)
	assert.Equal(t, "user", validated[0].Role)
	assert.Equal(t, "assistant", validated[1].Role)
}
