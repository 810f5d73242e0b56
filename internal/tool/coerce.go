package tool

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the input formats accepted for date normalization, in
// the order they are tried.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	time.RFC3339,
}

// CoerceInput normalizes raw tool arguments against the declared schema
// before validation. Numeric strings become numbers where the schema
// expects them, and date-typed fields normalize to ISO-8601 with relative
// words like "today" resolved against now. Values that cannot be coerced
// pass through unchanged.
func CoerceInput(schema map[string]interface{}, input json.RawMessage, now time.Time) json.RawMessage {
	var inputMap map[string]interface{}
	if err := json.Unmarshal(input, &inputMap); err != nil {
		return input
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return input
	}

	changed := false
	for key, value := range inputMap {
		propSchema, ok := properties[key].(map[string]interface{})
		if !ok {
			continue
		}

		coerced, did := coerceValue(key, propSchema, value, now)
		if did {
			inputMap[key] = coerced
			changed = true
		}
	}

	if !changed {
		return input
	}

	out, err := json.Marshal(inputMap)
	if err != nil {
		return input
	}
	return out
}

func coerceValue(key string, schema map[string]interface{}, value interface{}, now time.Time) (interface{}, bool) {
	expectedType, _ := schema["type"].(string)
	str, isString := value.(string)

	switch expectedType {
	case "number", "integer":
		if !isString {
			return nil, false
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return nil, false
		}
		return parsed, true

	case "string", "":
		if !isString {
			return nil, false
		}
		if !isDateField(key, schema) {
			return nil, false
		}
		normalized, ok := normalizeDate(str, now)
		if !ok || normalized == str {
			return nil, false
		}
		return normalized, true
	}

	return nil, false
}

func isDateField(key string, schema map[string]interface{}) bool {
	if format, ok := schema["format"].(string); ok {
		if format == "date" || format == "date-time" {
			return true
		}
	}
	return strings.Contains(strings.ToLower(key), "date")
}

func normalizeDate(raw string, now time.Time) (string, bool) {
	trimmed := strings.TrimSpace(raw)

	switch strings.ToLower(trimmed) {
	case "today", "now":
		return now.Format("2006-01-02"), true
	case "yesterday":
		return now.AddDate(0, 0, -1).Format("2006-01-02"), true
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format("2006-01-02"), true
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.Format("2006-01-02"), true
		}
	}

	return "", false
}
