package tool

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoerceInput(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"amount": map[string]interface{}{
				"type": "number",
			},
			"count": map[string]interface{}{
				"type": "integer",
			},
			"start_date": map[string]interface{}{
				"type":   "string",
				"format": "date",
			},
			"note": map[string]interface{}{
				"type": "string",
			},
		},
	}

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Numeric string becomes number",
			input: `{"amount":"50"}`,
			want:  `{"amount":50}`,
		},
		{
			name:  "Integer string becomes number",
			input: `{"count":"7"}`,
			want:  `{"count":7}`,
		},
		{
			name:  "Today resolves against the clock",
			input: `{"start_date":"today"}`,
			want:  `{"start_date":"2025-03-14"}`,
		},
		{
			name:  "Tomorrow resolves against the clock",
			input: `{"start_date":"tomorrow"}`,
			want:  `{"start_date":"2025-03-15"}`,
		},
		{
			name:  "Verbose date normalizes to ISO-8601",
			input: `{"start_date":"March 14, 2025"}`,
			want:  `{"start_date":"2025-03-14"}`,
		},
		{
			name:  "Unresolvable values pass through",
			input: `{"amount":"fifty","start_date":"someday"}`,
			want:  `{"amount":"fifty","start_date":"someday"}`,
		},
		{
			name:  "Already correct types untouched",
			input: `{"amount":50,"note":"hello"}`,
			want:  `{"amount":50,"note":"hello"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoerceInput(schema, json.RawMessage(tt.input), now)

			var gotMap, wantMap map[string]interface{}
			require.NoError(t, json.Unmarshal(got, &gotMap))
			require.NoError(t, json.Unmarshal([]byte(tt.want), &wantMap))
			require.Equal(t, wantMap, gotMap)
		})
	}
}

func TestCoerceInputInvalidJSONPassesThrough(t *testing.T) {
	schema := map[string]interface{}{"type": "object"}
	raw := json.RawMessage(`not json`)
	got := CoerceInput(schema, raw, time.Now())
	require.Equal(t, raw, got)
}
