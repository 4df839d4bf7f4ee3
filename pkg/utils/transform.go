package utils

import (
	"strings"
)

// BoolToUInt8 encodes a bool the way the store keeps flag columns.
func BoolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Dedup normalizes endpoint-style strings (trailing slash stripped) and
// drops duplicates, preserving order.
func Dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.TrimRight(e, "/")
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
