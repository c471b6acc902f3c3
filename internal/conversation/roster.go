package conversation

import (
	"fmt"
	"strings"

	"party-rsvp/internal/models"
)

// FormatRoster renders one line per guest, substituting placeholders for
// unset fields.
func FormatRoster(guests []models.Guest) string {
	if len(guests) == 0 {
		return msgNoGuests
	}

	var b strings.Builder
	b.WriteString(msgRosterHeader)
	for _, g := range guests {
		dress := placeholderDress
		if g.Dress != nil {
			dress = string(*g.Dress)
		}
		fmt.Fprintf(&b, "\n%s 🎵 %s 👕 %s",
			orDefault(g.Name, placeholderName),
			orDefault(g.Song, placeholderSong),
			dress,
		)
	}
	return b.String()
}

func orDefault(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
