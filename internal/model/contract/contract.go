package contract

import "strings"

// Message is the provider-neutral chat message. Content may arrive from
// clients as a list of typed parts; Normalize flattens it to plain text
// before any model call.
type Message struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []*ToolCall   `json:"tool_calls,omitempty"`
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Text returns the flattened textual content.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}

	var sb strings.Builder
	if m.Content != "" {
		sb.WriteString(m.Content)
	}
	for _, p := range m.Parts {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Normalize returns a copy with list content flattened to a single string.
func (m Message) Normalize() Message {
	out := m
	out.Content = m.Text()
	out.Parts = nil
	return out
}

type ToolCall struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

type ToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type CompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []ToolDef `json:"tools,omitempty"`
}

type CompletionResponse struct {
	Content   string      `json:"content"`
	ToolCalls []*ToolCall `json:"tool_calls,omitempty"`
}
