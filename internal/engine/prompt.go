package engine

import (
	"strings"

	toolcore "github.com/sentinelworks/sentinel/internal/tool"
)

// buildSystemPrompt assembles the fresh system prompt for a reasoning
// call: the configured base prompt, the user's resolved long-term memory,
// and the catalog of tools active this turn.
func buildSystemPrompt(base, memoryBlock string, active []toolcore.Descriptor) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(base))

	if memoryBlock != "" {
		sb.WriteString("\n\n")
		sb.WriteString(memoryBlock)
	}

	if len(active) > 0 {
		sb.WriteString("\n\nTools available this turn:\n")
		for _, d := range active {
			sb.WriteString("- ")
			sb.WriteString(d.Definition.Name)
			if d.Definition.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(d.Definition.Description)
			}
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
