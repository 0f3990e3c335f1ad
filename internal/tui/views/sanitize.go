package views

import (
	"strings"
	"unicode"
)

// emojiModifiers are codepoints that tcell renders badly when they follow a
// base character: skin tones, ZWJ and variation selectors.
var emojiModifiers = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1},
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1F3FB, Hi: 0x1F3FF, Stride: 1},
		{Lo: 0xE0100, Hi: 0xE01EF, Stride: 1},
	},
}

// sanitizeForTerminal strips emoji modifiers and control characters so that
// message text cannot break the table or thread layout.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(emojiModifiers, r) {
			return -1
		}
		if r != '\n' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
