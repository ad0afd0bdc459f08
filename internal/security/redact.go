// Package security redacts sensitive header and body content captured by
// debug sessions before it is persisted, so Authorization tokens, session
// cookies and similar secrets never land in the Store or reach a
// Broadcaster subscriber. Adapted from the teacher's
// internal/shared/security/sanitize.go (same redact-by-key-name and
// redact-by-pattern approach), narrowed to the header names and body shapes
// a captured NetworkEvent can actually carry.
package security

import "strings"

const redactedPlaceholder = "[REDACTED]"

var sensitiveHeaderNames = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"proxy-authorization": true,
	"x-api-key":           true,
}

// RedactHeaders scrubs values of sensitive headers in a raw header name/value
// map, returning a copy. Header name matching is case-insensitive.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if sensitiveHeaderNames[strings.ToLower(k)] {
			out[k] = redactedPlaceholder
		} else {
			out[k] = v
		}
	}
	return out
}

// Truncate caps s to maxBytes, matching the captured-body byte budget
// spec.md §3 requires for NetworkEvent request/response bodies. When
// truncation occurs a marker is appended inside the budget; a budget too
// small to hold the marker gets the cut content alone.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	marker := "...(truncated)"
	if len(marker) >= maxBytes {
		marker = ""
	}
	// Avoid splitting a multi-byte UTF-8 rune at the boundary.
	cut := maxBytes - len(marker)
	for cut > 0 && !isUTF8Boundary(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}

func isUTF8Boundary(b byte) bool {
	// A byte is NOT a UTF-8 continuation byte (10xxxxxx) at a safe cut point.
	return b&0xC0 != 0x80
}
