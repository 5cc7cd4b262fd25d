// Package playback moves received RTP audio into local sinks.
package playback

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"voice-translation-viewer/internal/observability/metrics"
)

// Sink is a playback endpoint. A muted sink accepts packets and drops them.
type Sink interface {
	SetMuted(muted bool)
	Muted() bool
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// Opus in WebRTC is always signalled as 48kHz stereo.
const (
	opusSampleRate = 48000
	opusChannels   = 2
)

// OggSink records Opus RTP payloads into an Ogg file.
type OggSink struct {
	mu      sync.Mutex
	muted   atomic.Bool
	writer  *oggwriter.OggWriter
	path    string
	metrics *metrics.Metrics
}

// NewOggSink creates dir if needed and opens name.ogg inside it. The sink
// starts muted until the routing policy decides otherwise.
func NewOggSink(dir, name string) (*OggSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create playback dir: %w", err)
	}
	path := filepath.Join(dir, name+".ogg")
	w, err := oggwriter.New(path, opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("open ogg writer: %w", err)
	}
	s := &OggSink{writer: w, path: path, metrics: metrics.DefaultMetrics}
	s.muted.Store(true)
	return s, nil
}

// Path returns the file being written.
func (s *OggSink) Path() string {
	return s.path
}

func (s *OggSink) SetMuted(muted bool) {
	s.muted.Store(muted)
}

func (s *OggSink) Muted() bool {
	return s.muted.Load()
}

func (s *OggSink) WriteRTP(pkt *rtp.Packet) error {
	muted := s.muted.Load()
	s.metrics.RecordPlaybackPacket(muted)
	if muted {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	return s.writer.WriteRTP(pkt)
}

func (s *OggSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}

// CountingSink discards audio and counts packets. It backs headless runs
// where only the routing outcome matters.
type CountingSink struct {
	muted   atomic.Bool
	written atomic.Int64
	dropped atomic.Int64
	bytes   atomic.Int64
	closed  atomic.Bool
	metrics *metrics.Metrics
}

// NewCountingSink creates a sink that starts muted.
func NewCountingSink() *CountingSink {
	s := &CountingSink{metrics: metrics.DefaultMetrics}
	s.muted.Store(true)
	return s
}

func (s *CountingSink) SetMuted(muted bool) {
	s.muted.Store(muted)
}

func (s *CountingSink) Muted() bool {
	return s.muted.Load()
}

func (s *CountingSink) WriteRTP(pkt *rtp.Packet) error {
	muted := s.muted.Load()
	s.metrics.RecordPlaybackPacket(muted)
	if muted || s.closed.Load() {
		s.dropped.Add(1)
		return nil
	}
	s.written.Add(1)
	s.bytes.Add(int64(len(pkt.Payload)))
	return nil
}

func (s *CountingSink) Close() error {
	s.closed.Store(true)
	return nil
}

// Written returns how many packets reached the sink while audible.
func (s *CountingSink) Written() int64 {
	return s.written.Load()
}

// Dropped returns how many packets were discarded while muted or closed.
func (s *CountingSink) Dropped() int64 {
	return s.dropped.Load()
}

// Bytes returns the payload bytes written while audible.
func (s *CountingSink) Bytes() int64 {
	return s.bytes.Load()
}
