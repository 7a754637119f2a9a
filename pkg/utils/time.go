package utils

import (
	"fmt"
	"time"
)

// ParseTimestamp parses a timestamp from RFC3339 format
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// ParseOptionalTimestamp parses an RFC3339 timestamp, returning nil for an
// empty string
func ParseOptionalTimestamp(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("use RFC3339 format (e.g., 2026-01-01T00:00:00Z), got %q: %w", s, err)
	}
	return &t, nil
}
