package conversation

import "party-rsvp/internal/models"

// Menu labels users pick from.
const (
	LabelAttend  = "I'm coming"
	LabelDecline = "Can't make it"
	LabelList    = "Guest list"
)

const (
	CommandStart = "start"
	CommandStats = "stats"
)

const (
	MaxNameLength = 50
	MaxSongLength = 100
)

const (
	msgGreeting         = "Hey there! 🥳\nAre you coming, not coming, or do you want to see the guest list?"
	msgAlreadyAttending = "I know you're coming, give it a rest! 😂"
	msgAskName          = "Awesome! What's your name?"
	msgInvalidName      = "Please send just your name, 1 to 50 characters of plain text."
	msgAskSong          = "Now suggest a song for the playlist 🎵"
	msgInvalidSong      = "Please send just the song name, 1 to 100 characters, no files or anything else. 🎵"
	msgAskDress         = "So, how are you dressing? Casual or Formal? 👗👔"
	msgInvalidDress     = "Just pick Casual or Formal! Try again."
	msgDone             = "Perfect, see you there 🥹"
	msgDeclined         = "Maybe next year! 😢\nIf you change your mind, just let me know."
	msgInvalidInput     = "Invalid message. Please pick one of the menu options."
	msgAdminOnly        = "This command is for the admin only."
	msgStats            = "Guest stats:\nTotal guests: %d"

	msgRosterHeader = "Guest list:"
	msgNoGuests     = "Nobody's coming yet 😢"

	placeholderName  = "(no name)"
	placeholderSong  = "no song suggested"
	placeholderDress = "undecided"
)

// MainMenu returns the quick replies shown while choosing.
func MainMenu() []string {
	return []string{LabelAttend, LabelDecline, LabelList}
}

// DressMenu returns the quick replies for the dress question.
func DressMenu() []string {
	labels := make([]string, len(models.DressCodes))
	for i, d := range models.DressCodes {
		labels[i] = string(d)
	}
	return labels
}

// Greeting is the opening message with the main menu.
func Greeting() Reply {
	return Reply{Text: msgGreeting, QuickReplies: MainMenu()}
}
