package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/sentinelworks/sentinel/internal/store"
)

// Embedder produces embedding vectors for memory values. The model
// router satisfies this; a nil embedder disables semantic recall.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Manager is the long-term memory surface: namespace-scoped facts per
// user, persisted through the store worker, with best-effort semantic
// recall over an in-process vector index.
type Manager struct {
	store    *store.Worker
	embedder Embedder

	mu       sync.Mutex
	vectorDB *chromem.DB
}

func NewManager(worker *store.Worker, embedder Embedder) *Manager {
	return &Manager{
		store:    worker,
		embedder: embedder,
		vectorDB: chromem.NewDB(),
	}
}

// Remember upserts a fact. The vector index is best-effort; an embedding
// failure never loses the fact itself.
func (m *Manager) Remember(ctx context.Context, entry store.MemoryEntry) error {
	if strings.TrimSpace(entry.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(entry.Namespace) == "" {
		entry.Namespace = "default"
	}
	if strings.TrimSpace(entry.Value) == "" {
		return fmt.Errorf("memory value is required")
	}

	if err := m.store.PutMemory(entry); err != nil {
		return err
	}

	m.indexEntry(ctx, entry)
	return nil
}

// Recall returns the stored facts for a user, optionally scoped to a
// namespace.
func (m *Manager) Recall(userID, namespace string) ([]store.MemoryEntry, error) {
	return m.store.GetMemory(userID, namespace)
}

// Search finds facts matching a query, preferring semantic similarity
// and falling back to substring matching when no vectors are available.
func (m *Manager) Search(ctx context.Context, userID, query string) ([]store.MemoryEntry, error) {
	if m.embedder != nil {
		if entries, ok := m.semanticSearch(ctx, userID, query); ok {
			return entries, nil
		}
	}
	return m.store.SearchMemory(userID, query)
}

// PromptBlock renders a user's memory as a block for the system prompt.
// An empty string means there is nothing to recall.
func (m *Manager) PromptBlock(userID string) string {
	entries, err := m.Recall(userID, "")
	if err != nil || len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("What you remember about this user:\n")
	for _, entry := range entries {
		sb.WriteString("- ")
		if entry.Key != "" {
			sb.WriteString(entry.Key)
			sb.WriteString(": ")
		}
		sb.WriteString(entry.Value)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Manager) indexEntry(ctx context.Context, entry store.MemoryEntry) {
	if m.embedder == nil {
		return
	}

	embedding, err := m.embedder.Embed(ctx, entry.Value)
	if err != nil {
		slog.Warn("Memory embedding failed, semantic recall skipped for entry",
			"user_id", entry.UserID, "namespace", entry.Namespace, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, err := m.vectorDB.GetOrCreateCollection("memory-"+entry.UserID, nil, nil)
	if err != nil {
		slog.Warn("Memory vector collection unavailable", "user_id", entry.UserID, "error", err)
		return
	}

	// AddDocuments is upsert in chromem
	err = coll.AddDocuments(ctx, []chromem.Document{{
		ID:        entry.Namespace + "/" + entry.Key,
		Embedding: embedding,
		Content:   entry.Value,
		Metadata: map[string]string{
			"namespace": entry.Namespace,
			"key":       entry.Key,
		},
	}}, 1)
	if err != nil {
		slog.Warn("Memory vector upsert failed", "user_id", entry.UserID, "error", err)
	}
}

func (m *Manager) semanticSearch(ctx context.Context, userID, query string) ([]store.MemoryEntry, bool) {
	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, false
	}

	m.mu.Lock()
	coll := m.vectorDB.GetCollection("memory-"+userID, nil)
	m.mu.Unlock()
	if coll == nil || coll.Count() == 0 {
		return nil, false
	}

	limit := 5
	if count := coll.Count(); count < limit {
		limit = count
	}

	docs, err := coll.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, false
	}

	entries := make([]store.MemoryEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, store.MemoryEntry{
			UserID:    userID,
			Namespace: doc.Metadata["namespace"],
			Key:       doc.Metadata["key"],
			Value:     doc.Content,
		})
	}
	return entries, true
}
