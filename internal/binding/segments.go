package binding

import "strings"

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// Segment is a contiguous piece of a raw string, either plain text or a
// dynamic segment including its markers.
type Segment struct {
	Text    string // verbatim source text
	Start   int    // byte offset of Text in the source
	Dynamic bool
}

// End returns the byte offset just past the segment.
func (s Segment) End() int { return s.Start + len(s.Text) }

// Expr returns the expression between the markers of a dynamic segment.
func (s Segment) Expr() string {
	if !s.Dynamic {
		return ""
	}
	return strings.TrimSpace(s.Text[len(openMarker) : len(s.Text)-len(closeMarker)])
}

// Segments splits raw into ordered text and dynamic segments. Braces inside
// a dynamic segment are balanced so object literals do not close it early,
// and braces inside string literals are skipped. When quotes leave the
// segment unterminated the braces alone decide where it closes, so an
// unbalanced quote stays inside the expression. An open marker without any
// matching close is kept as plain text together with the rest of the
// string. Joining every segment's Text yields raw.
func Segments(raw string) []Segment {
	var segments []Segment
	textStart := 0
	pos := 0
	for pos < len(raw) {
		open := strings.Index(raw[pos:], openMarker)
		if open < 0 {
			break
		}
		open += pos
		end := matchClose(raw, open, true)
		if end < 0 {
			end = matchClose(raw, open, false)
		}
		if end < 0 {
			// Unterminated: the remainder is plain text.
			break
		}
		if open > textStart {
			segments = append(segments, Segment{Text: raw[textStart:open], Start: textStart})
		}
		segments = append(segments, Segment{Text: raw[open:end], Start: open, Dynamic: true})
		textStart = end
		pos = end
	}
	if textStart < len(raw) {
		segments = append(segments, Segment{Text: raw[textStart:], Start: textStart})
	}
	return segments
}

// matchClose returns the offset just past the close marker matching the
// open marker at open, or -1. With quotes set, braces inside double-quoted
// strings are not counted.
func matchClose(raw string, open int, quotes bool) int {
	depth := 2
	inString := false
	for i := open + len(openMarker); i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = quotes
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// IsDynamic reports whether raw contains at least one complete dynamic segment.
func IsDynamic(raw string) bool {
	for _, seg := range Segments(raw) {
		if seg.Dynamic {
			return true
		}
	}
	return false
}

// IsSingleBinding reports whether raw is exactly one dynamic segment,
// ignoring surrounding whitespace. Such values keep the expression's type
// instead of being rendered as text.
func IsSingleBinding(raw string) (Segment, bool) {
	trimmed := strings.TrimSpace(raw)
	segs := Segments(trimmed)
	if len(segs) == 1 && segs[0].Dynamic {
		return segs[0], true
	}
	return Segment{}, false
}
