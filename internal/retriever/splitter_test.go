package retriever

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortInputSingleChunk(t *testing.T) {
	chunks := SplitText("hello world", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitTextEmptyInput(t *testing.T) {
	assert.Nil(t, SplitText("   ", 1000, 200))
	assert.Nil(t, SplitText("text", 0, 0))
}

func TestSplitTextChunksOverlap(t *testing.T) {
	words := make([]string, 0, 400)
	for i := 0; i < 400; i++ {
		words = append(words, "alpha")
	}
	text := strings.Join(words, " ")

	chunks := SplitText(text, 1000, 200)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 1000)
		assert.NotEmpty(t, chunk)
	}

	// Neighboring chunks share trailing context.
	for i := 1; i < len(chunks); i++ {
		tail := chunks[i-1][len(chunks[i-1])-50:]
		assert.Contains(t, chunks[i], strings.TrimSpace(tail)[:20])
	}
}

func TestSplitTextKeepsMultiByteRunesIntact(t *testing.T) {
	// Devanagari runes are three bytes each; no chunk boundary may land
	// inside one.
	text := strings.TrimSpace(strings.Repeat("नमस्ते दुनिया ", 60))

	chunks := SplitText(text, 100, 20)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk))
		assert.LessOrEqual(t, len(chunk), 100)
	}
}

func TestSplitTextHardCutFallsOnRuneBoundary(t *testing.T) {
	// No whitespace anywhere, so every cut is a hard cut mid-text.
	text := strings.Repeat("क", 300)

	chunks := SplitText(text, 100, 0)
	require.Greater(t, len(chunks), 1)

	total := 0
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk))
		total += utf8.RuneCountInString(chunk)
	}
	// With zero overlap the rune-aligned cuts partition the text exactly.
	assert.Equal(t, 300, total)
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 0, PageCount(""))
	assert.Equal(t, 1, PageCount("single page"))
	assert.Equal(t, 3, PageCount("one\ftwo\fthree"))
}
