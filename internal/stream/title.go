package stream

import (
	"context"
	"strings"
	"unicode"

	"github.com/sentinelworks/sentinel/internal/model"
	"github.com/sentinelworks/sentinel/internal/model/contract"
)

const maxTitleLength = 48

// GenerateTitle derives a short thread title from the first exchange. It
// asks the model when a backend is available and falls back to a
// deterministic truncation of the user's message.
func GenerateTitle(ctx context.Context, router model.Router, userText, assistantText string) string {
	if router != nil {
		resp, err := router.Invoke(ctx, contract.CompletionRequest{
			Messages: []contract.Message{
				{
					Role: "system",
					Content: "Generate a concise title (at most six words) for the conversation below. " +
						"Reply with the title only, no quotes.",
				},
				{Role: "user", Content: "User: " + userText + "\nAssistant: " + assistantText},
			},
		})
		if err == nil {
			if title := sanitizeTitle(resp.Content); title != "" {
				return title
			}
		}
	}

	return TruncateTitle(userText)
}

// TruncateTitle is the deterministic fallback: the user's message cut at
// a word boundary.
func TruncateTitle(text string) string {
	title := sanitizeTitle(text)
	if title == "" {
		return "New conversation"
	}
	return title
}

func sanitizeTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	title = strings.Trim(title, `"'`)
	if title == "" {
		return ""
	}
	if len(title) <= maxTitleLength {
		return title
	}

	cut := maxTitleLength
	for cut > 0 && !unicode.IsSpace(rune(title[cut-1])) {
		cut--
	}
	if cut == 0 {
		cut = maxTitleLength
	}
	return strings.TrimSpace(title[:cut]) + "..."
}
