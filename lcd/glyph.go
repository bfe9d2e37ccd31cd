package lcd

// HD44780 A00 ROM codes that differ from ASCII.
const (
	GlyphFullBlock  byte = 0xFF
	GlyphDegree     byte = 0xDF
	GlyphArrowRight byte = 0x7E
	GlyphArrowLeft  byte = 0x7F
)

// GlyphRune maps a ROM character code to the closest Unicode rune so
// terminal backends show what the module would.
func GlyphRune(b byte) rune {
	switch b {
	case GlyphFullBlock:
		return '█'
	case GlyphDegree:
		return '°'
	case GlyphArrowRight:
		return '→'
	case GlyphArrowLeft:
		return '←'
	}
	if b < 0x20 || b > 0x7F {
		return ' '
	}
	return rune(b)
}
