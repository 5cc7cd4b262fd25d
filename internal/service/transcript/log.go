// Package transcript projects the segment store into a bounded, time-ordered
// transcript log.
package transcript

import (
	"voice-translation-viewer/internal/service/segment"
	"voice-translation-viewer/internal/service/session"
)

// DefaultMaxEntries bounds the log when no explicit limit is given.
const DefaultMaxEntries = 100

// Entry is one line of the transcript log.
type Entry struct {
	SegmentID         string `json:"segmentId"`
	Text              string `json:"text"`
	Language          string `json:"language"`
	ParticipantID     string `json:"participantId,omitempty"`
	FirstReceivedTime int64  `json:"firstReceivedTime"`
}

// Pair is one row of the two-party view. Either side may be missing.
type Pair struct {
	Index  int    `json:"index"`
	Input  *Entry `json:"input,omitempty"`
	Output *Entry `json:"output,omitempty"`
}

// Log is the projected view. Entries is set in multi mode, Pairs in single mode.
type Log struct {
	Mode    session.Mode `json:"mode"`
	Entries []Entry      `json:"entries,omitempty"`
	Pairs   []Pair       `json:"pairs,omitempty"`
}

func toEntry(e segment.Entry) Entry {
	return Entry{
		SegmentID:         e.ID,
		Text:              e.Text,
		Language:          e.Language,
		ParticipantID:     e.ParticipantID,
		FirstReceivedTime: e.FirstReceivedTime,
	}
}

// Project derives the log for the current mode. maxEntries <= 0 means
// DefaultMaxEntries.
func Project(snap *segment.Snapshot, st session.State, maxEntries int) Log {
	if st.Mode == session.ModeSingle {
		return Log{
			Mode:  session.ModeSingle,
			Pairs: Paired(snap, st.InputLanguage, st.OutputLanguage, maxEntries),
		}
	}
	return Log{
		Mode:    session.ModeMulti,
		Entries: Flatten(snap, maxEntries),
	}
}

// Flatten merges every language into one chronological list and keeps the
// most recent maxEntries.
func Flatten(snap *segment.Snapshot, maxEntries int) []Entry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	all := snap.All()
	if len(all) > maxEntries {
		all = all[len(all)-maxEntries:]
	}
	out := make([]Entry, len(all))
	for i, e := range all {
		out[i] = toEntry(e)
	}
	return out
}

// Paired lines up the input and output buckets by ordinal position: pair i
// holds the i-th segment ever retained in each language. The two languages
// are not correlated by id or by timestamp. Only the most recent maxEntries
// pairs are kept.
func Paired(snap *segment.Snapshot, inputLanguage, outputLanguage string, maxEntries int) []Pair {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	in := snap.Bucket(inputLanguage)
	out := snap.Bucket(outputLanguage)
	inOffset := snap.Trimmed(inputLanguage)
	outOffset := snap.Trimmed(outputLanguage)

	total := max(inOffset+len(in), outOffset+len(out))
	// Ordinals below both offsets have nothing left on either side.
	start := min(inOffset, outOffset)
	if total-start > maxEntries {
		start = total - maxEntries
	}

	pairs := make([]Pair, 0, total-start)
	for i := start; i < total; i++ {
		p := Pair{Index: i}
		if j := i - inOffset; j >= 0 && j < len(in) {
			e := toEntry(in[j])
			p.Input = &e
		}
		if j := i - outOffset; j >= 0 && j < len(out) {
			e := toEntry(out[j])
			p.Output = &e
		}
		if p.Input == nil && p.Output == nil {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs
}
