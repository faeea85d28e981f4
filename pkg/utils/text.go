// Package utils provides small shared helpers for display text, embedding
// math, and logger construction.
package utils

import "unicode/utf8"

// Truncate shortens s to maxRunes runes for display, appending "..." when it
// cuts. Chunk text may carry multi-byte scripts, so the cut is rune-aligned.
// A zero or negative maxRunes returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "..."
}
