package engine

import (
	"strings"

	"github.com/sentinelworks/sentinel/internal/model/contract"
)

// validateHistory prepares raw thread history for a reasoning call: tool
// messages with empty content are dropped, list content is flattened to
// text, and the result is truncated to the last limit messages. A tool
// message orphaned at the front by truncation is dropped too, since its
// originating assistant call is gone.
func validateHistory(history []contract.Message, limit int) []contract.Message {
	validated := make([]contract.Message, 0, len(history))
	for _, m := range history {
		m = m.Normalize()
		if m.Role == "tool" && strings.TrimSpace(m.Content) == "" {
			continue
		}
		validated = append(validated, m)
	}

	if limit > 0 && len(validated) > limit {
		validated = validated[len(validated)-limit:]
	}

	for len(validated) > 0 && validated[0].Role == "tool" {
		validated = validated[1:]
	}

	return validated
}
