package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/sentinelworks/sentinel/internal/config"
	sentinelErrors "github.com/sentinelworks/sentinel/internal/errors"
)

// Embedder produces an embedding vector for text. The model router
// satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryResult carries the retrieval outcome. Found is false when the
// thread has no indexed document; callers render that as a sentinel
// message rather than an error.
type QueryResult struct {
	Found    bool
	Filename string
	Chunks   []string
}

// threadIndex is one thread's isolated vector index. Each thread gets its
// own in-memory chromem DB handle; no collection is ever shared across
// threads.
type threadIndex struct {
	db    *chromem.DB
	coll  *chromem.Collection
	stats Stats
}

// Registry maps thread ids to isolated document indexes. Re-ingesting for
// a thread builds the replacement index completely before an atomic swap,
// so concurrent readers see either the old or the new index, never a
// partial one.
type Registry struct {
	mu      sync.RWMutex
	threads map[string]*threadIndex
	writers map[string]*sync.Mutex

	embedder     Embedder
	chunkSize    int
	chunkOverlap int
	topK         int
	embedTimeout time.Duration
}

func NewRegistry(embedder Embedder, cfg config.RetrieverConfig) (*Registry, error) {
	embedTimeout, err := config.DurationOrDefault(cfg.EmbeddingTimeout, config.DefaultRetrieverEmbeddingTimeout)
	if err != nil {
		return nil, err
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = config.DefaultRetrieverChunkSize
	}
	chunkOverlap := cfg.ChunkOverlap
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = config.DefaultRetrieverChunkOverlap
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = config.DefaultRetrieverTopK
	}

	return &Registry{
		threads:      make(map[string]*threadIndex),
		writers:      make(map[string]*sync.Mutex),
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		topK:         topK,
		embedTimeout: embedTimeout,
	}, nil
}

// Ingest indexes a document for a thread, replacing any prior index. The
// new index is built off to the side and swapped in atomically.
func (r *Registry) Ingest(ctx context.Context, threadID string, doc Document) (Stats, error) {
	if threadID == "" {
		return Stats{}, sentinelErrors.InvalidInput("thread id is required")
	}

	pages := PageCount(doc.Text)
	chunks := SplitText(NormalizeText(doc.Text), r.chunkSize, r.chunkOverlap)
	if len(chunks) == 0 {
		return Stats{}, sentinelErrors.InvalidInput("document has no extractable text")
	}

	// Writers for the same thread serialize on build as well as swap, so
	// a slower, staler build can never overwrite a newer index.
	writer := r.writer(threadID)
	writer.Lock()
	defer writer.Unlock()

	db := chromem.NewDB()
	coll, err := db.CreateCollection("thread-"+threadID, nil, nil)
	if err != nil {
		return Stats{}, sentinelErrors.Wrap(err, "create collection")
	}

	documents := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		embedding, err := r.embed(ctx, chunk)
		if err != nil {
			return Stats{}, sentinelErrors.Wrap(err, "embed chunk")
		}
		documents = append(documents, chromem.Document{
			ID:        fmt.Sprintf("%s-%04d", threadID, i),
			Embedding: embedding,
			Content:   chunk,
			Metadata:  map[string]string{"filename": doc.Filename},
		})
	}

	if err := coll.AddDocuments(ctx, documents, 1); err != nil {
		return Stats{}, sentinelErrors.Wrap(err, "index chunks")
	}

	stats := Stats{
		Filename:   doc.Filename,
		Pages:      pages,
		Chunks:     len(chunks),
		IngestedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.threads[threadID] = &threadIndex{db: db, coll: coll, stats: stats}
	r.mu.Unlock()

	slog.Info("Document indexed", "thread_id", threadID, "filename", doc.Filename, "pages", pages, "chunks", len(chunks))
	return stats, nil
}

// Query retrieves the top matching chunks for a thread. A thread with no
// indexed document yields Found=false rather than an error.
func (r *Registry) Query(ctx context.Context, threadID, query string) (QueryResult, error) {
	r.mu.RLock()
	index, ok := r.threads[threadID]
	r.mu.RUnlock()
	if !ok {
		return QueryResult{Found: false}, nil
	}

	embedding, err := r.embed(ctx, query)
	if err != nil {
		return QueryResult{}, sentinelErrors.Wrap(err, "embed query")
	}

	limit := r.topK
	if count := index.coll.Count(); count < limit {
		limit = count
	}
	if limit == 0 {
		return QueryResult{Found: false}, nil
	}

	docs, err := index.coll.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return QueryResult{}, sentinelErrors.Wrap(err, "query index")
	}

	chunks := make([]string, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, doc.Content)
	}

	return QueryResult{
		Found:    true,
		Filename: index.stats.Filename,
		Chunks:   chunks,
	}, nil
}

// Status reports the indexed document for a thread, if any.
func (r *Registry) Status(threadID string) (Stats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	index, ok := r.threads[threadID]
	if !ok {
		return Stats{}, false
	}
	return index.stats, true
}

// Remove discards a thread's index. Unknown threads are a no-op.
func (r *Registry) Remove(threadID string) {
	writer := r.writer(threadID)
	writer.Lock()
	defer writer.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, threadID)
}

func (r *Registry) writer(threadID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[threadID]
	if !ok {
		w = &sync.Mutex{}
		r.writers[threadID] = w
	}
	return w
}

func (r *Registry) embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()
	return r.embedder.Embed(embedCtx, text)
}
