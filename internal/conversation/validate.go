package conversation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// cleanText trims s and checks it is 1..max printable runes. Zero-width
// joiners are allowed because Persian words and emoji sequences need them.
func cleanText(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !utf8.ValidString(s) || utf8.RuneCountInString(s) > max {
		return "", false
	}
	for _, r := range s {
		if r == '\u200c' || r == '\u200d' {
			continue
		}
		if !unicode.IsPrint(r) {
			return "", false
		}
	}
	return s, true
}

// CommandName returns the lowercased command word of "/cmd args", or "" when
// text is not a command.
func CommandName(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name, _, _ := strings.Cut(text[1:], " ")
	return strings.ToLower(name)
}

func matchLabel(text, label string) bool {
	return strings.EqualFold(strings.TrimSpace(text), label)
}
