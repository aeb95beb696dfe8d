// Package strings provides string list utilities for configuration values.
package strings

import (
	"strings"
)

// SplitAndDedupe splits every element on sep, trims the parts and drops
// empties and repeats. Order of first appearance is preserved.
//
// Example:
//
//	SplitAndDedupe([]string{"a:1, b:2", "a:1"}, ",")
//	// Returns: []string{"a:1", "b:2"}
func SplitAndDedupe(values []string, sep string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		for _, part := range strings.Split(v, sep) {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; !ok {
				seen[trimmed] = struct{}{}
				result = append(result, trimmed)
			}
		}
	}

	return result
}
