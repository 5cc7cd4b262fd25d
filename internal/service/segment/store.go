// Package segment holds the deduplicated, per-language set of transcription
// segments and the merge rules applied to every incoming batch.
package segment

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/observability/metrics"
)

// Entry is a stored segment. Language and FirstReceivedTime are always
// resolved. Seq records first-insertion order and breaks timestamp ties.
type Entry struct {
	models.Segment
	Seq uint64
}

func compareEntries(a, b Entry) int {
	return cmp.Or(
		cmp.Compare(a.FirstReceivedTime, b.FirstReceivedTime),
		cmp.Compare(a.Seq, b.Seq),
	)
}

// SortEntries orders entries by FirstReceivedTime, oldest first. Equal
// timestamps keep first-insertion order.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, compareEntries)
}

type bucket struct {
	entries map[string]Entry
	// retired holds ids removed by retention; redeliveries are ignored so
	// ordinals stay stable.
	retired map[string]struct{}
	trimmed int
}

func (b *bucket) clone() *bucket {
	if b == nil {
		return &bucket{
			entries: make(map[string]Entry),
			retired: make(map[string]struct{}),
		}
	}
	nb := &bucket{
		entries: make(map[string]Entry, len(b.entries)+1),
		retired: b.retired,
		trimmed: b.trimmed,
	}
	for id, e := range b.entries {
		nb.entries[id] = e
	}
	return nb
}

// Snapshot is an immutable view of the store. Readers must not modify
// anything reachable from it; every accessor returns copies.
type Snapshot struct {
	version uint64
	buckets map[string]*bucket
}

var emptySnapshot = &Snapshot{buckets: map[string]*bucket{}}

// Version increases by one with every ingest that changed the store.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Languages returns the bucket names in lexical order.
func (s *Snapshot) Languages() []string {
	langs := make([]string, 0, len(s.buckets))
	for lang := range s.buckets {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	return langs
}

// Len returns the number of segments across all languages.
func (s *Snapshot) Len() int {
	n := 0
	for _, b := range s.buckets {
		n += len(b.entries)
	}
	return n
}

// Get looks up a segment by language and id.
func (s *Snapshot) Get(language, id string) (Entry, bool) {
	b, ok := s.buckets[language]
	if !ok {
		return Entry{}, false
	}
	e, ok := b.entries[id]
	return e, ok
}

// Bucket returns the segments of one language in chronological order.
func (s *Snapshot) Bucket(language string) []Entry {
	b, ok := s.buckets[language]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	SortEntries(out)
	return out
}

// Trimmed returns how many of the oldest segments of a language were removed
// by retention. Bucket()[i] is the (Trimmed+i)-th segment ever retained.
func (s *Snapshot) Trimmed(language string) int {
	if b, ok := s.buckets[language]; ok {
		return b.trimmed
	}
	return 0
}

// All returns every segment across languages in chronological order.
func (s *Snapshot) All() []Entry {
	out := make([]Entry, 0, s.Len())
	for _, b := range s.buckets {
		for _, e := range b.entries {
			out = append(out, e)
		}
	}
	SortEntries(out)
	return out
}

// IngestResult describes what a single Ingest call changed.
type IngestResult struct {
	Snapshot *Snapshot
	// Stored holds the merged version of every accepted segment, in batch order.
	Stored  []Entry
	Added   int
	Updated int
	Trimmed int
	Dropped map[DropReason]int
}

// Store merges segment batches into copy-on-write snapshots. Writers are
// serialized; readers load the current snapshot without locking.
type Store struct {
	mu             sync.Mutex
	current        atomic.Pointer[Snapshot]
	seq            uint64
	languageFilter string
	retention      int
	now            func() time.Time
	metrics        *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLanguageFilter discards segments whose effective language differs.
func WithLanguageFilter(language string) Option {
	return func(s *Store) { s.languageFilter = language }
}

// WithRetention bounds each language bucket to n segments. Zero disables trimming.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithClock overrides the wall clock used for segments without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		metrics: metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(emptySnapshot)
	return s
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// LanguageFilter returns the configured filter, empty when none.
func (s *Store) LanguageFilter() string {
	return s.languageFilter
}

// Ingest merges a batch in array order. A later delivery of an id overwrites
// its text but keeps the original FirstReceivedTime. Ingest never removes a
// segment; only retention trimming does.
func (s *Store) Ingest(batch []models.Segment) IngestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	res := IngestResult{Snapshot: prev, Dropped: map[DropReason]int{}}

	var next map[string]*bucket
	touched := map[string]*bucket{}
	ingestTime := s.now().UnixMilli()

	for _, seg := range batch {
		if seg.ID == "" {
			s.drop(&res, seg, DropMissingID)
			continue
		}
		lang, reason, ok := Accept(seg, s.languageFilter)
		if !ok {
			s.drop(&res, seg, reason)
			continue
		}

		if next == nil {
			next = make(map[string]*bucket, len(prev.buckets)+1)
			for l, b := range prev.buckets {
				next[l] = b
			}
		}
		b, ok := touched[lang]
		if !ok {
			b = next[lang].clone()
			next[lang] = b
			touched[lang] = b
		}
		if _, retired := b.retired[seg.ID]; retired {
			s.drop(&res, seg, DropRetired)
			continue
		}

		entry := Entry{Segment: seg}
		entry.Language = lang
		if existing, found := b.entries[seg.ID]; found {
			entry.FirstReceivedTime = existing.FirstReceivedTime
			entry.Seq = existing.Seq
			if entry.ParticipantID == "" {
				entry.ParticipantID = existing.ParticipantID
			}
			res.Updated++
		} else {
			if entry.FirstReceivedTime == 0 {
				entry.FirstReceivedTime = ingestTime
			}
			s.seq++
			entry.Seq = s.seq
			res.Added++
		}
		b.entries[seg.ID] = entry
		res.Stored = append(res.Stored, entry)
	}

	if next == nil {
		s.metrics.RecordIngest(0, 0, 0)
		return res
	}

	for lang, b := range touched {
		res.Trimmed += s.trim(b)
		s.metrics.RecordStoreSize(lang, len(b.entries))
	}

	snap := &Snapshot{version: prev.version + 1, buckets: next}
	s.current.Store(snap)
	res.Snapshot = snap

	s.metrics.RecordIngest(res.Added, res.Updated, res.Trimmed)
	return res
}

func (s *Store) drop(res *IngestResult, seg models.Segment, reason DropReason) {
	res.Dropped[reason]++
	s.metrics.RecordSegmentDropped(string(reason))
	logger := logging.WithSegment(seg.Language, seg.ID)
	logger.Debug().
		Str("component", "segment-store").
		Str("reason", string(reason)).
		Msg("Segment discarded")
}

// trim removes the oldest entries of a bucket beyond the retention limit.
func (s *Store) trim(b *bucket) int {
	if s.retention == 0 || len(b.entries) <= s.retention {
		return 0
	}
	ordered := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		ordered = append(ordered, e)
	}
	SortEntries(ordered)

	excess := len(ordered) - s.retention
	retired := make(map[string]struct{}, len(b.retired)+excess)
	for id := range b.retired {
		retired[id] = struct{}{}
	}
	for _, e := range ordered[:excess] {
		delete(b.entries, e.ID)
		retired[e.ID] = struct{}{}
	}
	b.retired = retired
	b.trimmed += excess
	return excess
}
