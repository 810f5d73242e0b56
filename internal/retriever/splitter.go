package retriever

import (
	"strings"
	"unicode/utf8"
)

// SplitText cuts text into overlapping chunks of roughly chunkSize
// characters. Chunk boundaries prefer whitespace so words stay intact;
// consecutive chunks share overlap characters of context.
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		// Pull the cut back to the last whitespace inside the window, but
		// never shrink the chunk below half its target size. When no
		// whitespace is found the hard cut still lands on a rune boundary
		// so multi-byte scripts are never torn apart.
		cut := end
		for cut > start+chunkSize/2 && !isSplitBoundary(text[cut-1]) {
			cut--
		}
		if cut <= start+chunkSize/2 {
			cut = end
			for cut > start && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}

		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		for next > 0 && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			next = start + 1
			for next < len(text) && !utf8.RuneStart(text[next]) {
				next++
			}
		}
		start = next
	}

	return chunks
}

func isSplitBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}
