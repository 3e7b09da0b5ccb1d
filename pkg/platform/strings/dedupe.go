// Package strings holds small helpers for list-valued settings.
package strings

import (
	"strings"
)

// CleanList trims every element, drops empty ones and keeps the first
// occurrence of duplicates. A nil or empty input is returned as is.
func CleanList(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
