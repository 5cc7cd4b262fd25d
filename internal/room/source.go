package room

import (
	"errors"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"voice-translation-viewer/internal/service/playback"
	"voice-translation-viewer/internal/service/routing"
)

// enabler is the part of *lksdk.RemoteTrackPublication used as output gain.
type enabler interface {
	SetEnabled(enabled bool)
}

// rtpReader is the part of *webrtc.TrackRemote the playback pump reads.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, error)
}

type trackRemoteReader struct {
	track *webrtc.TrackRemote
}

func (r trackRemoteReader) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := r.track.ReadRTP()
	return pkt, err
}

var errNoTrack = errors.New("room: source has no track")

// trackSource is one remote audio publication. Gain maps onto enabling the
// publication: a disabled publication stops forwarding media to us.
type trackSource struct {
	identity string
	sid      string
	pub      enabler

	mu     sync.RWMutex
	reader rtpReader
	volume float64
	sinks  []playback.Sink
}

func newTrackSource(identity, sid string, pub enabler, reader rtpReader, sinks ...playback.Sink) *trackSource {
	return &trackSource{
		identity: identity,
		sid:      sid,
		pub:      pub,
		reader:   reader,
		volume:   -1,
		sinks:    sinks,
	}
}

func (s *trackSource) Identity() string { return s.identity }
func (s *trackSource) SID() string      { return s.sid }

// Ready reports whether the subscribed track has been attached.
func (s *trackSource) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader != nil
}

func (s *trackSource) setReader(r rtpReader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = r
}

func (s *trackSource) SetVolume(volume float64) {
	s.mu.Lock()
	changed := s.volume != volume
	s.volume = volume
	s.mu.Unlock()
	if changed && s.pub != nil {
		s.pub.SetEnabled(volume > 0)
	}
}

// Volume returns the last applied gain, -1 before the first decision.
func (s *trackSource) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

func (s *trackSource) Sinks() []routing.Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]routing.Sink, len(s.sinks))
	for i, sk := range s.sinks {
		out[i] = sk
	}
	return out
}

func (s *trackSource) playbackSinks() []playback.Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]playback.Sink(nil), s.sinks...)
}

func (s *trackSource) ReadRTP() (*rtp.Packet, error) {
	s.mu.RLock()
	r := s.reader
	s.mu.RUnlock()
	if r == nil {
		return nil, errNoTrack
	}
	return r.ReadRTP()
}

// Close detaches and closes every sink.
func (s *trackSource) Close() error {
	s.mu.Lock()
	sinks := s.sinks
	s.sinks = nil
	s.mu.Unlock()
	var errs []error
	for _, sk := range sinks {
		errs = append(errs, sk.Close())
	}
	return errors.Join(errs...)
}
