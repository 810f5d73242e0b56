package store

import "time"

// --- Thread index (threads/index.json) ---

type ThreadMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ThreadIndex struct {
	Threads map[string]ThreadMeta `json:"threads"`
}

// --- Message log (threads/<id>.jsonl) ---

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

type MessageRecord struct {
	ID         string    `json:"id"` // ULID
	Timestamp  time.Time `json:"ts"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolCalls  []byte    `json:"tool_calls,omitempty"` // raw JSON of the assistant's requested calls
}

// --- Long-term memory (memory.json) ---

// MemoryEntry is a free-text fact keyed by user and namespace.
type MemoryEntry struct {
	UserID    string    `json:"user_id"`
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type memoryFile struct {
	Entries []MemoryEntry `json:"entries"`
}
