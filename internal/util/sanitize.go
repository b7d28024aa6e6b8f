// Package util holds small shared helpers.
package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxComponentBytes caps a single path component so the full path stays
// within common filesystem limits even with long stream titles.
const maxComponentBytes = 200

// SanitizeFilename turns an arbitrary title into a safe single path
// component. Path separators and control characters are stripped, traversal
// sequences are removed, and the result is NFC-normalized and capped at 200
// bytes without splitting a UTF-8 sequence. Empty results fall back to
// "untitled".
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune(' ')
		case r < 0x20 || r == 0x7f:
			// drop control characters
		case unicode.Is(unicode.Cf, r):
			// drop format characters (zero-width joiners and friends)
		case strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	name = b.String()

	// Remove traversal sequences and leading dots that would hide the file.
	name = strings.ReplaceAll(name, "..", "")
	name = strings.TrimLeft(name, ". ")
	name = strings.TrimRight(name, ". ")
	name = collapseSpaces(name)

	name = truncateUTF8(name, maxComponentBytes)
	name = strings.TrimRight(name, ". ")
	if name == "" {
		return "untitled"
	}
	return name
}

// collapseSpaces folds runs of whitespace into single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
