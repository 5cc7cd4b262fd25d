// Package room adapts a LiveKit room to the viewer controller: transcription
// and data packets become segment batches, remote audio publications become
// routing sources, and participants feed host resolution.
package room

import (
	"strings"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/service/segment"
	"voice-translation-viewer/internal/service/viewer"
)

// FromTranscription converts LiveKit transcription segments. speaker is the
// identity of the participant the transcription belongs to, empty if unknown.
func FromTranscription(segs []*lksdk.TranscriptionSegment, speaker string) []models.Segment {
	out := make([]models.Segment, 0, len(segs))
	for _, s := range segs {
		if s == nil {
			continue
		}
		seg := models.Segment{
			ID:            s.ID,
			Text:          s.Text,
			Language:      s.Language,
			ParticipantID: speaker,
			IsFinal:       models.Bool(s.Final),
		}
		if !s.FirstReceivedTime.IsZero() {
			seg.FirstReceivedTime = s.FirstReceivedTime.UnixMilli()
		}
		out = append(out, seg)
	}
	return out
}

// FromDataPacket converts a plain-text data packet, as published by agents
// that predate transcription events, into a final segment. The packet topic,
// when set, names the language; fallbackLanguage is used otherwise.
func FromDataPacket(payload []byte, topic, sender, fallbackLanguage string, ids *segment.Generator, now time.Time) (models.Segment, bool) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return models.Segment{}, false
	}
	lang := topic
	if lang == "" {
		lang = fallbackLanguage
	}
	return models.Segment{
		ID:                ids.Next(sender),
		Text:              text,
		Language:          lang,
		FirstReceivedTime: now.UnixMilli(),
		IsFinal:           models.Bool(true),
	}, true
}

// participantInfo is the part of a LiveKit participant the adapter reads.
type participantInfo interface {
	Identity() string
	SID() string
	Attributes() map[string]string
	Permissions() *livekit.ParticipantPermission
	AudioLevel() float32
}

// CanPublish reports whether p counts as a publisher for host resolution.
// An explicit user_type attribute wins over the permission grant, since
// listeners are usually allowed to publish too.
func CanPublish(p participantInfo) bool {
	switch p.Attributes()[AttrUserType] {
	case UserTypeHost:
		return true
	case UserTypeListener:
		return false
	}
	return p.Permissions().GetCanPublish()
}

func describeParticipant(p participantInfo) viewer.Participant {
	return viewer.Participant{
		Identity:   p.Identity(),
		SID:        p.SID(),
		CanPublish: CanPublish(p),
		Level:      func() float64 { return float64(p.AudioLevel()) },
	}
}
