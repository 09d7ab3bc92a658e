package logutil

import (
	"strings"
	"unicode"
)

// maxLogFieldLen bounds how much of a client-supplied value ends up in a log line.
const maxLogFieldLen = 128

// SanitizeForLog flattens a client-supplied string (session name, id from a
// query string) so it cannot forge extra log lines: line breaks and tabs
// become spaces, other control characters are dropped and the result is
// truncated.
func SanitizeForLog(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	if len(s) > maxLogFieldLen {
		// Cut on a rune boundary.
		cut := maxLogFieldLen
		for cut > 0 && !utf8Start(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
