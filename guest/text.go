package guest

import "sort"

// LineIndex maps byte offsets to line and column positions.
type LineIndex struct {
	starts []int
	size   int
}

// NewLineIndex indexes the line starts of text.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{starts: starts, size: len(text)}
}

// Position converts an offset, clamped to the text bounds.
func (li *LineIndex) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > li.size {
		offset = li.size
	}
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	return Position{Offset: offset, Line: line, Column: offset - li.starts[line]}
}

// Span converts a byte range.
func (li *LineIndex) Span(start, end int) *Span {
	return &Span{Start: li.Position(start), End: li.Position(end)}
}

// Offset converts a line and column back to an offset, clamped to the text.
func (li *LineIndex) Offset(line, column int) int {
	if line < 0 {
		return 0
	}
	if line >= len(li.starts) {
		return li.size
	}
	off := li.starts[line] + column
	if off > li.size {
		off = li.size
	}
	if line+1 < len(li.starts) && off >= li.starts[line+1] {
		off = li.starts[line+1] - 1
	}
	return off
}

// ApplyEdits applies non-overlapping edits to text. Edits may be given in any
// order.
func ApplyEdits(text string, edits []TextEdit) string {
	sorted := append([]TextEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Span.Start > sorted[j].Span.Start })
	for _, e := range sorted {
		start, end := clamp(e.Span.Start, len(text)), clamp(e.Span.End, len(text))
		if end < start {
			end = start
		}
		text = text[:start] + e.NewText + text[end:]
	}
	return text
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
