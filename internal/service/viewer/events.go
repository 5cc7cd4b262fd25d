package viewer

import (
	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/service/routing"
	"voice-translation-viewer/internal/service/session"
)

// event is the closed set of inputs handled by the controller loop.
type event interface {
	viewerEvent()
}

type batchEvent struct {
	segments []models.Segment
}

// Participant is a remote participant as observed by the room transport.
type Participant struct {
	Identity   string
	SID        string
	CanPublish bool
	// Level samples the participant's current audio level in [0, 1]. Nil
	// disables level smoothing for the participant.
	Level func() float64
}

type participantEvent struct {
	participant Participant
}

type localIdentityEvent struct {
	identity string
}

type participantLeftEvent struct {
	identity string
}

type sourceAddedEvent struct {
	source routing.Source
}

type sourceRemovedEvent struct {
	identity string
	sid      string
}

type actionEvent struct {
	action session.Action
	reply  chan session.State
}

type reevaluateEvent struct{}

type languagesEvent struct {
	languages []models.Language
}

type syncEvent struct {
	done chan struct{}
}

func (batchEvent) viewerEvent()           {}
func (participantEvent) viewerEvent()     {}
func (localIdentityEvent) viewerEvent()   {}
func (participantLeftEvent) viewerEvent() {}
func (sourceAddedEvent) viewerEvent()     {}
func (sourceRemovedEvent) viewerEvent()   {}
func (actionEvent) viewerEvent()          {}
func (reevaluateEvent) viewerEvent()      {}
func (languagesEvent) viewerEvent()       {}
func (syncEvent) viewerEvent()            {}
