package tool

import (
	"encoding/json"
	"testing"
)

func TestValidateInput(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"location": map[string]interface{}{
				"type": "string",
			},
			"duration": map[string]interface{}{
				"type": "number",
			},
			"tags": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "string",
				},
			},
		},
		"required": []string{"location"},
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "Valid input",
			input:   `{"location": "Oslo", "duration": 3, "tags": ["forecast"]}`,
			wantErr: false,
		},
		{
			name:    "Missing required field",
			input:   `{"duration": 3}`,
			wantErr: true,
		},
		{
			name:    "Invalid type (string vs number)",
			input:   `{"location": "Oslo", "duration": "three"}`,
			wantErr: true,
		},
		{
			name:    "Invalid array item type",
			input:   `{"location": "Oslo", "tags": [123]}`,
			wantErr: true,
		},
		{
			name:    "Extra fields (allowed)",
			input:   `{"location": "Oslo", "extra": "field"}`,
			wantErr: false,
		},
		{
			name:    "Malformed JSON",
			input:   `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(schema, json.RawMessage(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInput() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
