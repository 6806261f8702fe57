package views

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// Codepoints tcell lays out at the wrong width: skin tone modifiers, the
// zero width joiner and both variation selector blocks.
var unstableWidth = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1},
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1F3FB, Hi: 0x1F3FF, Stride: 1},
		{Lo: 0xE0100, Hi: 0xE01EF, Stride: 1},
	},
}

// sanitizeForTerminal drops unstable-width codepoints and control
// characters other than newline. Invalid UTF-8 bytes become U+FFFD.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(unstableWidth, r) || (unicode.IsControl(r) && r != '\n') {
			return -1
		}
		return r
	}, s)
}

// previewLine renders the first line of s in at most cells terminal
// columns. Cut text ends in an ellipsis, also when later lines were
// dropped. Wide CJK characters count as two columns.
func previewLine(s string, cells int) string {
	s = sanitizeForTerminal(s)
	cut := false
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s, cut = s[:i], true
	}
	if cells <= 0 {
		return ""
	}
	if !cut && uniseg.StringWidth(s) <= cells {
		return s
	}

	var b strings.Builder
	used := 0
	state := -1
	rest := s
	for rest != "" {
		var cluster string
		var width int
		cluster, rest, width, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if used+width > cells-1 {
			break
		}
		b.WriteString(cluster)
		used += width
	}
	b.WriteString("…")
	return b.String()
}
