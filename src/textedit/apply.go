// Package textedit applies LSP text edits to document text. Edit positions
// are (line, UTF-16 code unit) pairs resolved against the original text
// layout, never against intermediate states.
package textedit

import (
	"fmt"
	"sort"
	"unicode/utf8"

	lsp "go.lsp.dev/protocol"
)

// resolvedEdit is an edit with its range translated to byte offsets
type resolvedEdit struct {
	start   int
	end     int
	newText string
}

// Apply returns text with all edits applied. Offsets are resolved against
// the original text, then edits are spliced in descending start order so
// earlier splices cannot shift the offsets of later ones. Overlapping
// ranges are rejected with an error. An empty edit list returns the input
// unchanged.
func Apply(text string, edits []lsp.TextEdit) (string, error) {
	if len(edits) == 0 {
		return text, nil
	}

	lineStarts := lineByteOffsets(text)

	resolved := make([]resolvedEdit, 0, len(edits))
	for _, edit := range edits {
		start, err := byteOffset(text, lineStarts, edit.Range.Start)
		if err != nil {
			return "", fmt.Errorf("bad edit start: %w", err)
		}
		end, err := byteOffset(text, lineStarts, edit.Range.End)
		if err != nil {
			return "", fmt.Errorf("bad edit end: %w", err)
		}
		if end < start {
			return "", fmt.Errorf("inverted edit range: start=%d end=%d", start, end)
		}
		resolved = append(resolved, resolvedEdit{start: start, end: end, newText: edit.NewText})
	}

	// Splice from the back of the document so earlier splices cannot shift
	// later offsets. Stable ascending order means ties are applied last
	// edit first, which keeps same-position insertions in server order.
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].start < resolved[j].start
	})

	// A buggy server can emit overlapping ranges; splicing them would
	// corrupt the output, so reject the whole list.
	for i := 1; i < len(resolved); i++ {
		if resolved[i].start < resolved[i-1].end {
			return "", fmt.Errorf("overlapping edits: [%d,%d) and [%d,%d)",
				resolved[i-1].start, resolved[i-1].end, resolved[i].start, resolved[i].end)
		}
	}

	buf := []byte(text)
	for i := len(resolved) - 1; i >= 0; i-- {
		e := resolved[i]
		out := make([]byte, 0, len(buf)-(e.end-e.start)+len(e.newText))
		out = append(out, buf[:e.start]...)
		out = append(out, e.newText...)
		out = append(out, buf[e.end:]...)
		buf = out
	}
	return string(buf), nil
}

// lineByteOffsets returns the byte offset of every line start. Line 0
// starts at offset 0; each subsequent line starts after a '\n'.
func lineByteOffsets(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// byteOffset translates a (line, UTF-16 column) position to a byte offset.
// Positions addressing past the last line or past a line's end clamp to the
// document and line end respectively, matching how LSP servers address the
// end-of-document insertion point.
func byteOffset(text string, lineStarts []int, pos lsp.Position) (int, error) {
	line := int(pos.Line)
	if line >= len(lineStarts) {
		return len(text), nil
	}

	lineStart := lineStarts[line]
	lineEnd := len(text)
	if line+1 < len(lineStarts) {
		lineEnd = lineStarts[line+1] - 1 // exclude the '\n'
	}

	col := int(pos.Character)
	offset := lineStart
	for col > 0 && offset < lineEnd {
		r, size := utf8.DecodeRuneInString(text[offset:lineEnd])
		units := 1
		if r >= 0x10000 {
			units = 2
		}
		if units > col {
			return 0, fmt.Errorf("position %d:%d splits a surrogate pair", pos.Line, pos.Character)
		}
		col -= units
		offset += size
	}
	return offset, nil
}
