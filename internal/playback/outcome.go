package playback

// State is how a line's processing ended.
type State int

const (
	// StateSkipped means the line needed no audio.
	StateSkipped State = iota
	// StatePlayed means the clip played to its end.
	StatePlayed
	// StateFailed means the player returned an error.
	StateFailed
	// StateTimedOut means the clip was cut off at the line timeout.
	StateTimedOut
	// StateDiscarded means the session ended while the line was in flight.
	StateDiscarded
	// StateBusy means another line was in flight; nothing happened.
	StateBusy
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateSkipped:
		return "skipped"
	case StatePlayed:
		return "played"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed out"
	case StateDiscarded:
		return "discarded"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// SkipReason says why a line was skipped.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipAlreadySpoken
	SkipFocusedRole
	SkipToggledOff
	SkipNoVoice
	SkipEmptyText
	SkipOutOfRange
	SkipVoiceDisabled
)

// String returns the reason.
func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return ""
	case SkipAlreadySpoken:
		return "already spoken"
	case SkipFocusedRole:
		return "focused role"
	case SkipToggledOff:
		return "line type off"
	case SkipNoVoice:
		return "no voice"
	case SkipEmptyText:
		return "empty text"
	case SkipOutOfRange:
		return "no such line"
	case SkipVoiceDisabled:
		return "voice disabled"
	default:
		return "unknown"
	}
}

// Outcome is the result of processing one line.
type Outcome struct {
	Index   int
	State   State
	Skip    SkipReason
	Speaker string
	VoiceID string
	Err     error
}

// Cursor tracks progress through the script. Both fields are -1 before
// anything is seen.
type Cursor struct {
	Current    int
	LastSpoken int
}
