package conversation

// State is a user's position in the onboarding dialogue. The zero value is
// StateChoosing, the initial and resting state.
type State int

const (
	StateChoosing State = iota
	StateAwaitingName
	StateAwaitingSong
	StateAwaitingDress
)

func (s State) String() string {
	switch s {
	case StateChoosing:
		return "choosing"
	case StateAwaitingName:
		return "awaiting_name"
	case StateAwaitingSong:
		return "awaiting_song"
	case StateAwaitingDress:
		return "awaiting_dress"
	default:
		return "unknown"
	}
}
