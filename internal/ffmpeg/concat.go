package ffmpeg

import (
	"fmt"
	"strings"
)

// BuildConcatList renders an ffconcat version 1.0 list for the demuxer.
// Paths are single-quoted with embedded quotes escaped, so titles containing
// quotes or spaces cannot break the directive.
func BuildConcatList(paths []string) string {
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(p))
	}
	return b.String()
}

// escapeConcatPath escapes a path for a single-quoted ffconcat directive.
// A literal single quote closes the string, emits an escaped quote, and
// reopens it.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, `'`, `'\''`)
}
