package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction is returned when an action kind has no variant.
	ErrUnknownAction = errors.New("unknown session action")
	// ErrInvalidValue is returned when an action carries an out-of-range value.
	ErrInvalidValue = errors.New("invalid session action value")
)

// Action is one of the closed set of session transitions declared in this
// package. The unexported method keeps other packages from adding variants.
type Action interface {
	Kind() string
	sessionAction()
}

type SetMode struct{ Mode Mode }
type SetCaptionsEnabled struct{ Enabled bool }
type ToggleCaptions struct{}
type SetCaptionsLanguage struct{ Language string }
type SetInputLanguage struct{ Language string }
type SetOutputLanguage struct{ Language string }
type SetCurrentSpeaker struct{ Speaker Speaker }

// SwapLanguages flips the translation direction of a two-party session and
// hands the turn to the other speaker.
type SwapLanguages struct{}

type SetRole struct{ Role Role }

func (SetMode) Kind() string             { return "set_mode" }
func (SetCaptionsEnabled) Kind() string  { return "set_captions_enabled" }
func (ToggleCaptions) Kind() string      { return "toggle_captions" }
func (SetCaptionsLanguage) Kind() string { return "set_captions_language" }
func (SetInputLanguage) Kind() string    { return "set_input_language" }
func (SetOutputLanguage) Kind() string   { return "set_output_language" }
func (SetCurrentSpeaker) Kind() string   { return "set_current_speaker" }
func (SwapLanguages) Kind() string       { return "swap_languages" }
func (SetRole) Kind() string             { return "set_role" }

func (SetMode) sessionAction()             {}
func (SetCaptionsEnabled) sessionAction()  {}
func (ToggleCaptions) sessionAction()      {}
func (SetCaptionsLanguage) sessionAction() {}
func (SetInputLanguage) sessionAction()    {}
func (SetOutputLanguage) sessionAction()   {}
func (SetCurrentSpeaker) sessionAction()   {}
func (SwapLanguages) sessionAction()       {}
func (SetRole) sessionAction()             {}

// Reduce applies a to s. An action outside the declared set means the code
// and the state machine disagree, so Reduce panics instead of ignoring it.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case SetMode:
		s.Mode = act.Mode
	case SetCaptionsEnabled:
		s.CaptionsEnabled = act.Enabled
	case ToggleCaptions:
		s.CaptionsEnabled = !s.CaptionsEnabled
	case SetCaptionsLanguage:
		s.CaptionsLanguage = act.Language
	case SetInputLanguage:
		s.InputLanguage = act.Language
	case SetOutputLanguage:
		s.OutputLanguage = act.Language
	case SetCurrentSpeaker:
		s.CurrentSpeaker = act.Speaker
	case SwapLanguages:
		s.InputLanguage, s.OutputLanguage = s.OutputLanguage, s.InputLanguage
		if s.CurrentSpeaker == SpeakerUser1 {
			s.CurrentSpeaker = SpeakerUser2
		} else {
			s.CurrentSpeaker = SpeakerUser1
		}
	case SetRole:
		s.Role = act.Role
	default:
		panic(fmt.Sprintf("session: unhandled action %T", a))
	}
	return s
}

type actionPayload struct {
	Mode     string `json:"mode"`
	Enabled  *bool  `json:"enabled"`
	Language string `json:"language"`
	Speaker  string `json:"speaker"`
}

// ParseAction decodes an action received from outside the process. Unlike
// Reduce, unknown kinds are ordinary input errors here. SetRole is not
// accepted: the role is derived from host resolution only.
func ParseAction(kind string, payload json.RawMessage) (Action, error) {
	var p actionPayload
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
	}

	switch kind {
	case "set_mode":
		m := Mode(p.Mode)
		if !m.Valid() {
			return nil, fmt.Errorf("%w: mode %q", ErrInvalidValue, p.Mode)
		}
		return SetMode{Mode: m}, nil
	case "set_captions_enabled":
		if p.Enabled == nil {
			return nil, fmt.Errorf("%w: enabled is required", ErrInvalidValue)
		}
		return SetCaptionsEnabled{Enabled: *p.Enabled}, nil
	case "toggle_captions":
		return ToggleCaptions{}, nil
	case "set_captions_language":
		if p.Language == "" {
			return nil, fmt.Errorf("%w: language is required", ErrInvalidValue)
		}
		return SetCaptionsLanguage{Language: p.Language}, nil
	case "set_input_language":
		if p.Language == "" {
			return nil, fmt.Errorf("%w: language is required", ErrInvalidValue)
		}
		return SetInputLanguage{Language: p.Language}, nil
	case "set_output_language":
		if p.Language == "" {
			return nil, fmt.Errorf("%w: language is required", ErrInvalidValue)
		}
		return SetOutputLanguage{Language: p.Language}, nil
	case "set_current_speaker":
		sp := Speaker(p.Speaker)
		if !sp.Valid() {
			return nil, fmt.Errorf("%w: speaker %q", ErrInvalidValue, p.Speaker)
		}
		return SetCurrentSpeaker{Speaker: sp}, nil
	case "swap_languages":
		return SwapLanguages{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}
}
