package models

import "strings"

// UserID identifies a chat user. For WhatsApp it is the phone number part of
// the sender JID.
type UserID string

// Guest represents an attending guest
type Guest struct {
	UserID UserID     `json:"-"`
	Name   *string    `json:"name"`
	Song   *string    `json:"song"`
	Dress  *DressCode `json:"dress"`
	Status Status     `json:"status"`
}

// NewAttendingGuest returns a fresh record with every optional field unset.
func NewAttendingGuest(id UserID) Guest {
	return Guest{UserID: id, Status: StatusAttending}
}

// Clone returns a deep copy so callers never share pointers with the registry.
func (g Guest) Clone() Guest {
	c := g
	if g.Name != nil {
		c.Name = StringPtr(*g.Name)
	}
	if g.Song != nil {
		c.Song = StringPtr(*g.Song)
	}
	if g.Dress != nil {
		d := *g.Dress
		c.Dress = &d
	}
	return c
}

// Status represents the attendance status. Absence of a record means the
// user is not attending, so only one status is ever stored.
type Status string

const (
	StatusAttending Status = "attending"
)

// DressCode is the closed set of dress choices.
type DressCode string

const (
	DressCasual DressCode = "Casual"
	DressFormal DressCode = "Formal"
)

// DressCodes lists the valid choices in display order.
var DressCodes = []DressCode{DressCasual, DressFormal}

// Valid reports whether d is one of the known dress codes.
func (d DressCode) Valid() bool {
	for _, c := range DressCodes {
		if d == c {
			return true
		}
	}
	return false
}

// ParseDressCode matches a user supplied label, ignoring case and
// surrounding whitespace.
func ParseDressCode(label string) (DressCode, bool) {
	label = strings.TrimSpace(label)
	for _, c := range DressCodes {
		if strings.EqualFold(label, string(c)) {
			return c, true
		}
	}
	return "", false
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}
