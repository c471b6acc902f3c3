package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		in, cc, want string
	}{
		{"+972 50-123-4567", "972", "972501234567"},
		{"050-123-4567", "972", "972501234567"},
		{"9720501234567", "972", "972501234567"},
		{"(050) 123 4567", "972", "972501234567"},
		{"+1 (415) 555-0100", "972", "14155550100"},
		{"0044 20 7946 0000", "972", "00442079460000"},
		{"050-123-4567", "", "0501234567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhoneNumber(tt.in, tt.cc), tt.in)
	}
}

func TestFormatQuickReplies(t *testing.T) {
	assert.Equal(t, "hello", FormatQuickReplies("hello", nil))
	assert.Equal(t,
		"Pick one\n\nReply with:\n• *Casual*\n• *Formal*",
		FormatQuickReplies("Pick one", []string{"Casual", "Formal"}),
	)
}
