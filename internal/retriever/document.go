package retriever

import (
	"strings"
	"time"
)

// Document is extracted text submitted for ingestion. Page breaks in the
// extracted text are marked with form feed characters; plain text and
// markdown arrive as a single page.
type Document struct {
	Filename string
	Text     string
}

// Stats describes the indexed state of a thread's document.
type Stats struct {
	Filename   string
	Pages      int
	Chunks     int
	IngestedAt time.Time
}

// PageCount reports how many form-feed-separated pages the text holds.
func PageCount(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return strings.Count(text, "\f") + 1
}

// NormalizeText flattens page separators into paragraph breaks so the
// splitter never emits a chunk that straddles a raw form feed.
func NormalizeText(text string) string {
	return strings.ReplaceAll(text, "\f", "\n\n")
}
