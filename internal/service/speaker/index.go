// Package speaker keeps the latest caption text per originating participant.
package speaker

import (
	"maps"
	"sync"

	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/service/segment"
)

// Apply folds a batch into prev and returns the updated mapping of
// participant identity to latest text. prev is not modified. Segments
// without a participant are skipped; they are not an error.
func Apply(prev map[string]string, batch []models.Segment, languageFilter string) map[string]string {
	next := make(map[string]string, len(prev))
	maps.Copy(next, prev)
	for _, seg := range batch {
		if seg.ParticipantID == "" {
			continue
		}
		if _, _, ok := segment.Accept(seg, languageFilter); !ok {
			continue
		}
		next[seg.ParticipantID] = seg.Text
	}
	return next
}

// Index is the concurrency-safe holder of the per-participant view.
type Index struct {
	mu             sync.RWMutex
	languageFilter string
	latest         map[string]string
}

// NewIndex creates an empty index. An empty filter accepts every language.
func NewIndex(languageFilter string) *Index {
	return &Index{
		languageFilter: languageFilter,
		latest:         map[string]string{},
	}
}

// SetLanguageFilter changes the filter applied to later batches.
func (x *Index) SetLanguageFilter(language string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.languageFilter = language
}

// Update folds a batch into the index.
func (x *Index) Update(batch []models.Segment) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.latest = Apply(x.latest, batch, x.languageFilter)
}

// Latest returns the text last seen from a participant.
func (x *Index) Latest(participantID string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	text, ok := x.latest[participantID]
	return text, ok
}

// Forget drops a participant, typically when it leaves the room.
func (x *Index) Forget(participantID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.latest[participantID]; !ok {
		return
	}
	next := maps.Clone(x.latest)
	delete(next, participantID)
	x.latest = next
}

// Snapshot returns a copy of the whole mapping.
func (x *Index) Snapshot() map[string]string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return maps.Clone(x.latest)
}
