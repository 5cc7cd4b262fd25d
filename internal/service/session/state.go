// Package session holds the small shared record that parameterizes the
// projectors and the routing policy. It changes only through Actions.
package session

import "voice-translation-viewer/internal/models"

// Mode selects between a two-party translation pair and multi-party captions.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Speaker identifies which side of a two-party session is talking.
type Speaker string

const (
	SpeakerUser1 Speaker = "user1"
	SpeakerUser2 Speaker = "user2"
)

// Role is the local participant's role. RoleUndetermined holds until the host
// has been resolved.
type Role string

const (
	RoleUndetermined Role = ""
	RoleHost         Role = "host"
	RoleListener     Role = "listener"
)

// Attribute keys published on the local participant for the agent.
const (
	AttrCaptionsLanguage = "captions_language"
	AttrInputLanguage    = "input_language"
	AttrOutputLanguage   = "output_language"
	AttrCurrentSpeaker   = "current_speaker"
	AttrMode             = "mode"
)

// State is an immutable value; transitions return a new State.
type State struct {
	Mode             Mode    `json:"mode"`
	CaptionsEnabled  bool    `json:"captionsEnabled"`
	CaptionsLanguage string  `json:"captionsLanguage"`
	InputLanguage    string  `json:"inputLanguage"`
	OutputLanguage   string  `json:"outputLanguage"`
	CurrentSpeaker   Speaker `json:"currentSpeaker"`
	Role             Role    `json:"role"`
}

// Default returns the state a session starts with.
func Default() State {
	return State{
		Mode:             ModeMulti,
		CaptionsEnabled:  true,
		CaptionsLanguage: models.DefaultLanguage,
		InputLanguage:    models.DefaultLanguage,
		OutputLanguage:   "es",
		CurrentSpeaker:   SpeakerUser1,
		Role:             RoleUndetermined,
	}
}

// Attributes renders the state as the flat attribute set the agent reads.
func (s State) Attributes() map[string]string {
	return map[string]string{
		AttrCaptionsLanguage: s.CaptionsLanguage,
		AttrInputLanguage:    s.InputLanguage,
		AttrOutputLanguage:   s.OutputLanguage,
		AttrCurrentSpeaker:   string(s.CurrentSpeaker),
		AttrMode:             string(s.Mode),
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSingle || m == ModeMulti
}

// Valid reports whether sp is a known speaker.
func (sp Speaker) Valid() bool {
	return sp == SpeakerUser1 || sp == SpeakerUser2
}

// Valid reports whether r is a known role, including undetermined.
func (r Role) Valid() bool {
	return r == RoleUndetermined || r == RoleHost || r == RoleListener
}
