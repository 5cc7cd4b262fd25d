package viewer

import (
	"slices"

	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/service/caption"
	"voice-translation-viewer/internal/service/routing"
	"voice-translation-viewer/internal/service/session"
	"voice-translation-viewer/internal/service/transcript"
)

// SpeakerCaption is the live bubble under one participant's circle.
type SpeakerCaption struct {
	Identity string  `json:"identity"`
	Text     string  `json:"text"`
	Level    float64 `json:"level"`
}

// Views is everything a client needs to render the session.
type Views struct {
	Version    uint64            `json:"version"`
	Session    session.State     `json:"session"`
	Host       string            `json:"host,omitempty"`
	Transcript transcript.Log    `json:"transcript"`
	Captions   caption.View      `json:"captions"`
	Speakers   []SpeakerCaption  `json:"speakers"`
	Languages  []models.Language `json:"languages"`
	Routing    routing.Table     `json:"routing"`
}

// Views derives the current views from the latest snapshots. It is safe to
// call from any goroutine.
func (c *Controller) Views() Views {
	snap := c.segments.Snapshot()
	st := c.sessions.State()
	host, _ := c.hosts.Host()

	c.mu.RLock()
	langs := slices.Clone(c.languages)
	c.mu.RUnlock()
	if langs == nil {
		langs = []models.Language{}
	}

	return Views{
		Version:    snap.Version(),
		Session:    st,
		Host:       host,
		Transcript: transcript.Project(snap, st, c.maxEntries),
		Captions:   caption.Project(snap, st),
		Speakers:   c.speakerCaptions(),
		Languages:  langs,
		Routing:    c.policy.Last(),
	}
}

func (c *Controller) speakerCaptions() []SpeakerCaption {
	texts := c.speakers.Snapshot()
	var levels map[string]float64
	if c.levels != nil {
		levels = c.levels.Levels()
	}

	ids := make([]string, 0, len(texts)+len(levels))
	for id := range texts {
		ids = append(ids, id)
	}
	for id := range levels {
		if _, ok := texts[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := make([]SpeakerCaption, len(ids))
	for i, id := range ids {
		out[i] = SpeakerCaption{Identity: id, Text: texts[id], Level: levels[id]}
	}
	return out
}
