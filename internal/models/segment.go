// Package models defines the data structures shared by the transcript engine,
// the routing policy and the transports.
package models

// DefaultLanguage is the bucket used for segments that arrive without a language.
const DefaultLanguage = "en"

// Segment is one unit of transcribed or translated speech.
//
// FirstReceivedTime is expressed in Unix milliseconds; zero means the sender
// did not provide one. IsFinal is nil when finality is unknown, which is
// treated the same as final.
type Segment struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	Language          string `json:"language,omitempty"`
	ParticipantID     string `json:"participantId,omitempty"`
	FirstReceivedTime int64  `json:"firstReceivedTime,omitempty"`
	IsFinal           *bool  `json:"isFinal,omitempty"`
}

// EffectiveLanguage returns the segment language, defaulting to DefaultLanguage.
func (s Segment) EffectiveLanguage() string {
	if s.Language == "" {
		return DefaultLanguage
	}
	return s.Language
}

// Final reports whether the segment should be retained. Only an explicit
// false marks a segment as interim.
func (s Segment) Final() bool {
	return s.IsFinal == nil || *s.IsFinal
}

// Bool returns a pointer to b, for building segments with explicit finality.
func Bool(b bool) *bool {
	return &b
}
