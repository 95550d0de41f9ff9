package normalize

import "strings"

// Clean drops zero-width characters, collapses every Unicode whitespace run
// (newlines, line separators and non-breaking or ideographic spaces
// included) to one space, and trims.
func Clean(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
