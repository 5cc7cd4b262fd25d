// Package caption derives the captions currently on screen from the segment
// store and the session state.
package caption

import (
	"fmt"

	"voice-translation-viewer/internal/service/segment"
	"voice-translation-viewer/internal/service/session"
)

// State is the derived display state of the caption area.
type State int

const (
	// StateHidden - captions disabled; lines are still derived but inert.
	StateHidden State = iota
	// StateShowing - captions enabled.
	StateShowing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateHidden:
		return "HIDDEN"
	case StateShowing:
		return "SHOWING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalText renders the state the same way String does.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the form produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "HIDDEN":
		*s = StateHidden
	case "SHOWING":
		*s = StateShowing
	default:
		return fmt.Errorf("caption: unknown state %q", b)
	}
	return nil
}

// Emphasis controls how prominently a line is rendered.
type Emphasis string

const (
	EmphasisReduced Emphasis = "reduced"
	EmphasisFull    Emphasis = "full"
)

// Line is one rendered caption.
type Line struct {
	SegmentID string   `json:"segmentId"`
	Text      string   `json:"text"`
	Language  string   `json:"language"`
	Emphasis  Emphasis `json:"emphasis"`
}

// View is the caption area. Lines are ordered top to bottom.
type View struct {
	State State        `json:"state"`
	Mode  session.Mode `json:"mode"`
	Lines []Line       `json:"lines"`
}

// Visible reports whether the lines should be shown.
func (v View) Visible() bool {
	return v.State == StateShowing
}

// Texts returns the text of each line, top to bottom.
func (v View) Texts() []string {
	out := make([]string, len(v.Lines))
	for i, l := range v.Lines {
		out[i] = l.Text
	}
	return out
}

// multiLines is how many recent captions multi mode keeps on screen.
const multiLines = 2

// Project derives the caption view. There is no terminal state: every call
// re-derives the view from the snapshot.
func Project(snap *segment.Snapshot, st session.State) View {
	v := View{State: StateHidden, Mode: st.Mode, Lines: []Line{}}
	if st.CaptionsEnabled {
		v.State = StateShowing
	}

	if st.Mode == session.ModeSingle {
		if e, ok := latest(snap, st.InputLanguage); ok {
			v.Lines = append(v.Lines, line(e, EmphasisReduced))
		}
		if e, ok := latest(snap, st.OutputLanguage); ok {
			v.Lines = append(v.Lines, line(e, EmphasisFull))
		}
		return v
	}

	entries := snap.Bucket(st.CaptionsLanguage)
	if len(entries) > multiLines {
		entries = entries[len(entries)-multiLines:]
	}
	for i, e := range entries {
		emphasis := EmphasisReduced
		if i == len(entries)-1 {
			emphasis = EmphasisFull
		}
		v.Lines = append(v.Lines, line(e, emphasis))
	}
	return v
}

func latest(snap *segment.Snapshot, language string) (segment.Entry, bool) {
	entries := snap.Bucket(language)
	if len(entries) == 0 {
		return segment.Entry{}, false
	}
	return entries[len(entries)-1], true
}

func line(e segment.Entry, emphasis Emphasis) Line {
	return Line{
		SegmentID: e.ID,
		Text:      e.Text,
		Language:  e.Language,
		Emphasis:  emphasis,
	}
}
