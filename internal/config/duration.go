package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses a duration string, falling back to the default
// when the value is empty.
func DurationOrDefault(value string, fallback string) (time.Duration, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		raw = fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return d, nil
}
