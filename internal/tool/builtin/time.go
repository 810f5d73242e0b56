package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	toolcore "github.com/sentinelworks/sentinel/internal/tool"
)

// TimeTool returns the current time.
type TimeTool struct{}

func NewTimeTool() *TimeTool {
	return &TimeTool{}
}

func (t *TimeTool) Name() string {
	return "time"
}

func (t *TimeTool) Description() string {
	return "Get the current time."
}

func (t *TimeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"utc_offset": map[string]interface{}{
				"type":        "string",
				"description": "UTC offset like +07:00 (optional)",
			},
		},
	}
}

func (t *TimeTool) Execute(ctx context.Context, _ toolcore.Invocation, input json.RawMessage) (toolcore.Result, error) {
	_ = ctx

	var args struct {
		UTCOffset string `json:"utc_offset"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return toolcore.Result{}, fmt.Errorf("invalid input: %w", err)
		}
	}

	now := time.Now().UTC()
	offset := strings.TrimSpace(args.UTCOffset)
	if offset != "" {
		parsedOffset, err := parseUTCOffset(offset)
		if err != nil {
			return toolcore.Result{}, err
		}
		now = now.Add(time.Duration(parsedOffset) * time.Second)
	}

	return toolcore.StructuredResult(map[string]string{
		"time":       now.Format(time.RFC3339),
		"utc_offset": offsetOrUTC(offset),
	}), nil
}

func parseUTCOffset(offset string) (int, error) {
	if len(offset) != 6 {
		return 0, fmt.Errorf("invalid utc_offset format")
	}
	if offset[0] != '+' && offset[0] != '-' {
		return 0, fmt.Errorf("invalid utc_offset sign")
	}
	if offset[3] != ':' {
		return 0, fmt.Errorf("invalid utc_offset format")
	}
	if offset[1] < '0' || offset[1] > '9' ||
		offset[2] < '0' || offset[2] > '9' ||
		offset[4] < '0' || offset[4] > '9' ||
		offset[5] < '0' || offset[5] > '9' {
		return 0, fmt.Errorf("invalid utc_offset format")
	}

	hours := int(offset[1]-'0')*10 + int(offset[2]-'0')
	minutes := int(offset[4]-'0')*10 + int(offset[5]-'0')
	if hours > 23 || minutes > 59 {
		return 0, fmt.Errorf("invalid utc_offset value")
	}

	totalSeconds := hours*3600 + minutes*60
	if offset[0] == '-' {
		totalSeconds = -totalSeconds
	}
	return totalSeconds, nil
}

func offsetOrUTC(in string) string {
	if strings.TrimSpace(in) == "" {
		return "+00:00"
	}
	return in
}
