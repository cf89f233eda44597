package canonicalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultPreviewRunes caps how much of an observed value lands in an
// oracle event's human-readable preview.
const DefaultPreviewRunes = 120

// NormalizePreview renders raw observed bytes as a short, NFC-normalized
// single-line preview. Truncation is rune-safe so the preview of the
// same bytes is identical on every platform.
func NormalizePreview(data []byte, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultPreviewRunes
	}
	s := norm.NFC.String(string(data))
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	runes := []rune(s)
	if len(runes) <= maxRunes {
		return string(runes)
	}
	return string(runes[:maxRunes]) + "..."
}
