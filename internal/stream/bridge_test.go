package stream

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/sentinel/internal/model/contract"
)

func frames(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	out := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}

func TestBridgeTextDelta(t *testing.T) {
	var buf bytes.Buffer
	bridge := NewBridge(&buf)

	bridge.TextDelta("hello")
	bridge.TextDelta("")
	bridge.TextDelta("world")

	lines := frames(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, `0:"hello"`, lines[0])
	assert.Equal(t, `0:"world"`, lines[1])
}

func TestBridgeToolCallFrames(t *testing.T) {
	var buf bytes.Buffer
	bridge := NewBridge(&buf)

	bridge.ToolCallStart(contract.ToolCall{ID: "call_1", Name: "weather"}, json.RawMessage(`{"location":"Oslo"}`))
	bridge.ToolCallResult("call_1", "sunny")

	lines := frames(t, &buf)
	require.Len(t, lines, 2)

	require.True(t, strings.HasPrefix(lines[0], "9:"))
	var start map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(lines[0][2:]), &start))
	assert.JSONEq(t, `"call_1"`, string(start["toolCallId"]))
	assert.JSONEq(t, `"weather"`, string(start["toolName"]))
	assert.JSONEq(t, `{"location":"Oslo"}`, string(start["args"]))

	require.True(t, strings.HasPrefix(lines[1], "a:"))
	var result map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[1][2:]), &result))
	assert.Equal(t, "call_1", result["toolCallId"])
	assert.Equal(t, "sunny", result["result"])
}

func TestBridgeToolCallStartDefaultsEmptyArgs(t *testing.T) {
	var buf bytes.Buffer
	bridge := NewBridge(&buf)

	bridge.ToolCallStart(contract.ToolCall{ID: "call_1", Name: "time"}, nil)

	lines := frames(t, &buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"args":{}`)
}

func TestBridgeSynthesizeTextChunksReassemble(t *testing.T) {
	var buf bytes.Buffer
	bridge := NewBridge(&buf)

	full := strings.Repeat("abcdefghij", 25) // 250 chars, several chunks
	bridge.SynthesizeText(full)

	lines := frames(t, &buf)
	require.Greater(t, len(lines), 1)

	var rebuilt strings.Builder
	for _, line := range lines {
		require.True(t, strings.HasPrefix(line, "0:"))
		var chunk string
		require.NoError(t, json.Unmarshal([]byte(line[2:]), &chunk))
		rebuilt.WriteString(chunk)
	}
	assert.Equal(t, full, rebuilt.String())
}

func TestBridgeErrorClosesStream(t *testing.T) {
	var buf bytes.Buffer
	bridge := NewBridge(&buf)

	bridge.TextDelta("partial")
	bridge.Error("backend_error")
	bridge.Error("second error dropped")
	bridge.TextDelta("after error dropped")
	bridge.Finish("title", "stop")

	lines := frames(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, `0:"partial"`, lines[0])
	assert.Equal(t, `3:"backend_error"`, lines[1])
}

func TestBridgeFinishEmitsSummaryOnce(t *testing.T) {
	var buf bytes.Buffer
	bridge := NewBridge(&buf)

	bridge.Finish("Weather in Oslo", "stop")
	bridge.Finish("ignored", "stop")

	lines := frames(t, &buf)
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "d:"))

	var summary summaryPayload
	require.NoError(t, json.Unmarshal([]byte(lines[0][2:]), &summary))
	assert.Equal(t, "Weather in Oslo", summary.Title)
	assert.Equal(t, "stop", summary.FinishReason)
}
