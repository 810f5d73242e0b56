package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/sentinelworks/sentinel/internal/model/contract"
)

// Frame type characters. Each frame is one line: <type>:<json>\n.
const (
	frameTextDelta      = '0'
	frameError          = '3'
	frameToolCallStart  = '9'
	frameToolCallResult = 'a'
	frameSummary        = 'd'
)

// defaultChunkSize is the synthesized delta size when a backend returned
// the full text without streaming.
const defaultChunkSize = 80

type toolCallStartPayload struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type toolCallResultPayload struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

type summaryPayload struct {
	Title        string `json:"title"`
	FinishReason string `json:"finishReason"`
}

// Bridge translates engine events into the client wire protocol. Frames
// for one turn go out in order: text deltas interleaved with tool-call
// frames, then exactly one summary frame, or exactly one error frame
// followed by nothing.
type Bridge struct {
	w       io.Writer
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
}

func NewBridge(w io.Writer) *Bridge {
	b := &Bridge{w: w}
	if f, ok := w.(http.Flusher); ok {
		b.flusher = f
	}
	return b
}

// TextDelta emits a `0:` frame.
func (b *Bridge) TextDelta(text string) {
	if text == "" {
		return
	}
	b.writeFrame(frameTextDelta, text)
}

// ToolCallStart emits a `9:` frame with the coerced arguments.
func (b *Bridge) ToolCallStart(call contract.ToolCall, args json.RawMessage) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	b.writeFrame(frameToolCallStart, toolCallStartPayload{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Args:       args,
	})
}

// ToolCallResult emits an `a:` frame with the canonicalized result.
func (b *Bridge) ToolCallResult(callID string, result string) {
	b.writeFrame(frameToolCallResult, toolCallResultPayload{
		ToolCallID: callID,
		Result:     result,
	})
}

// SynthesizeText emits the full text as fixed-size `0:` chunks. Used when
// the backend produced no incremental deltas.
func (b *Bridge) SynthesizeText(full string) {
	runes := []rune(full)
	for start := 0; start < len(runes); start += defaultChunkSize {
		end := start + defaultChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		b.TextDelta(string(runes[start:end]))
	}
}

// Error emits exactly one `3:` frame and closes the bridge; any frame
// after the first error is dropped.
func (b *Bridge) Error(message string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.emit(frameError, message)
}

// Finish emits the terminal `d:` summary frame and closes the bridge.
func (b *Bridge) Finish(title, finishReason string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.emit(frameSummary, summaryPayload{Title: title, FinishReason: finishReason})
}

func (b *Bridge) writeFrame(frameType byte, payload interface{}) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	b.emit(frameType, payload)
}

func (b *Bridge) emit(frameType byte, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode stream frame", "type", string(frameType), "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := fmt.Fprintf(b.w, "%c:%s\n", frameType, data); err != nil {
		// Client gone; the turn keeps running so tool results still persist.
		b.closed = true
		return
	}
	if b.flusher != nil {
		b.flusher.Flush()
	}
}
